// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines FileIdentity, the address of an input file.
package model

import (
	"path"
	"strings"
)

// RootCategory is the directory category of files that live directly in the
// version root.
const RootCategory = "root"

// FileIdentity identifies one input file within one version.
type FileIdentity struct {
	Version           string `json:"version"`
	DirectoryCategory string `json:"directoryCategory"`
	Path              string `json:"path"`
	Name              string `json:"name"`
	Extension         string `json:"extension"`
}

// NewFileIdentity derives a FileIdentity from a version and a slash separated
// path relative to the version root. The directory category is the first
// directory of the path, or RootCategory for top level files.
func NewFileIdentity(version, relPath string) FileIdentity {
	clean := strings.TrimPrefix(path.Clean("/"+relPath), "/")
	category := RootCategory
	if dir, _, ok := strings.Cut(clean, "/"); ok {
		category = dir
	}
	name := path.Base(clean)
	return FileIdentity{
		Version:           version,
		DirectoryCategory: category,
		Path:              clean,
		Name:              name,
		Extension:         path.Ext(name),
	}
}

// Key is the identity string of the file inside the whole corpus.
func (f FileIdentity) Key() string {
	return f.Version + "/" + f.Path
}

// String implements fmt.Stringer.
func (f FileIdentity) String() string {
	return f.Key()
}

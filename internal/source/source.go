// Package source lists and reads versioned input files.
//
// A Backend knows how to enumerate and read the files of one version. A
// Source wraps a backend with an id and include/exclude filters, and Resolve
// merges the listings of several sources into one file set per version.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/ucdpipe/internal/filter"
	"github.com/vk/ucdpipe/internal/model"
)

// Backend lists and reads the files of a version.
type Backend interface {
	ListFiles(ctx context.Context, version string) ([]model.FileIdentity, error)
	ReadFile(ctx context.Context, file model.FileIdentity) ([]byte, error)
}

// StreamOptions bound a streamed read. Zero values mean "whole file".
type StreamOptions struct {
	ChunkSize int
	Start     int64
	// End is exclusive; zero reads to the end of the file.
	End int64
}

// StreamReader is implemented by backends that can read incrementally.
type StreamReader interface {
	ReadFileStream(ctx context.Context, file model.FileIdentity, opts StreamOptions) (io.ReadCloser, error)
}

// Metadata describes a file without reading it.
type Metadata struct {
	Size         int64
	Hash         string
	LastModified time.Time
}

// MetadataProvider is implemented by backends that can describe files.
type MetadataProvider interface {
	Metadata(ctx context.Context, file model.FileIdentity) (Metadata, error)
}

// Source is one registered input.
type Source struct {
	ID      string
	Backend Backend
	Include filter.Predicate
	Exclude filter.Predicate
}

// accepts applies the include/exclude rule: no include filter or include
// accepts, and no exclude filter or exclude rejects.
func (s Source) accepts(f model.FileIdentity) bool {
	if s.Include != nil && !s.Include(f, nil) {
		return false
	}
	if s.Exclude != nil && s.Exclude(f, nil) {
		return false
	}
	return true
}

// File is a resolved file tagged with the source it came from.
type File struct {
	model.FileIdentity
	SourceID string
	backend  Backend
}

// NewFile tags identity with a source. Mostly useful to tests and backends
// outside this package.
func NewFile(identity model.FileIdentity, src Source) File {
	return File{FileIdentity: identity, SourceID: src.ID, backend: src.Backend}
}

// Open returns a reader over the file content, streaming when the backend
// supports it.
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.backend == nil {
		return nil, fmt.Errorf("file %s has no backend", f.Key())
	}
	if sr, ok := f.backend.(StreamReader); ok {
		return sr.ReadFileStream(ctx, f.FileIdentity, StreamOptions{})
	}
	data, err := f.backend.ReadFile(ctx, f.FileIdentity)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Metadata returns the file metadata when the backend provides it.
func (f File) Metadata(ctx context.Context) (Metadata, bool, error) {
	mp, ok := f.backend.(MetadataProvider)
	if !ok {
		return Metadata{}, false, nil
	}
	md, err := mp.Metadata(ctx, f.FileIdentity)
	if err != nil {
		return Metadata{}, false, err
	}
	return md, true, nil
}

// Resolve lists every source for version and merges the results. Files are
// de-duplicated by path: a later source replaces an earlier one's entry in
// place, so the merged order is the order in which paths were first seen.
func Resolve(ctx context.Context, sources []Source, version string) ([]File, error) {
	var files []File
	index := make(map[string]int)

	for _, src := range sources {
		if src.Backend == nil {
			return nil, fmt.Errorf("source '%s' has no backend", src.ID)
		}
		listed, err := src.Backend.ListFiles(ctx, version)
		if err != nil {
			return nil, fmt.Errorf("source '%s' failed to list version '%s': %w", src.ID, version, err)
		}
		for _, id := range listed {
			if !src.accepts(id) {
				continue
			}
			f := NewFile(id, src)
			if i, ok := index[id.Path]; ok {
				files[i] = f
				continue
			}
			index[id.Path] = len(files)
			files = append(files, f)
		}
	}
	return files, nil
}

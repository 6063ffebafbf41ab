// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Entry and the canonical ordering applied to resolver
// output.
//
// Why a string sort?
//
// Published output was historically ordered by comparing the hexadecimal
// text of the start code point, not its numeric value ("10000" sorts before
// "2000"). NormalizeEntries reproduces that ordering so regenerated output
// diffs cleanly against older releases.
package model

import "sort"

// Entry is a single resolved value attached to a code point or range.
type Entry struct {
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	CodePoint string `json:"codePoint,omitempty"`
	Property  string `json:"property,omitempty"`
	Value     any    `json:"value"`
}

// SortKey returns Start when set and CodePoint otherwise.
func (e Entry) SortKey() string {
	if e.Start != "" {
		return e.Start
	}
	return e.CodePoint
}

// NormalizeEntries returns a copy of entries stably sorted by SortKey using
// plain string comparison. It is deterministic and idempotent.
func NormalizeEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortKey() < out[j].SortKey()
	})
	return out
}

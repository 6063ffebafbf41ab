// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Record, the parsed row produced by a route's parser.
//
// Why string code points?
//
// Code points are kept as the hexadecimal text exactly as it appears in the
// source file ("0041", "1F600"). Ordering of output has always been done on
// that text, and keeping it avoids a lossy round trip through integers for
// values with leading zeros.
package model

// RecordKind tells a resolver which of the optional fields are populated.
type RecordKind string

const (
	// KindRange is a "XXXX..YYYY" span; Start and End are set.
	KindRange RecordKind = "range"
	// KindPoint is a single code point; CodePoint is set.
	KindPoint RecordKind = "point"
	// KindSequence is a space separated list of code points; Sequence is set.
	KindSequence RecordKind = "sequence"
	// KindAlias is a name mapping without a code point column.
	KindAlias RecordKind = "alias"
)

// Record is one parsed row of an input file.
type Record struct {
	SourceFile FileIdentity      `json:"sourceFile"`
	Kind       RecordKind        `json:"kind"`
	Start      string            `json:"start,omitempty"`
	End        string            `json:"end,omitempty"`
	CodePoint  string            `json:"codePoint,omitempty"`
	Sequence   []string          `json:"sequence,omitempty"`
	Property   string            `json:"property,omitempty"`
	Value      string            `json:"value"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// FirstCodePoint returns the code point that orders this record: the range
// start, the single code point, or the first element of a sequence.
func (r Record) FirstCodePoint() string {
	switch {
	case r.Start != "":
		return r.Start
	case r.CodePoint != "":
		return r.CodePoint
	case len(r.Sequence) > 0:
		return r.Sequence[0]
	}
	return ""
}

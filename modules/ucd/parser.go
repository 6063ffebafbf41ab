package ucd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/registry"
	"github.com/vk/ucdpipe/internal/stream"
)

// maxCodePoint is the last valid Unicode code point.
const maxCodePoint = 0x10FFFF

// ParseSemicolon parses the common UCD row format:
//
//	0000..007F    ; Basic Latin          # comment
//	00AD          ; Default_Ignorable    # comment
//	0041 0301     ; 00C1                 # sequence
//	gc ; Lu ; Uppercase_Letter           # alias rows
//
// A first field that is a code point, range, or sequence yields a record of
// that kind with Value set to the second field; further fields land in
// Metadata as "field2", "field3" and so on. Any other first field yields an
// alias record: Property is the first field, Value the second, and Sequence
// holds every name after the first. Blank lines and comments are skipped.
//
// The "property" option sets Property on code point records.
func ParseSemicolon(_ context.Context, in registry.ParseInput) stream.Seq {
	property := registry.OptString(in.Options, "property", "")

	return stream.Once(func(yield func(model.Record, error) bool) {
		lineNo := 0
		for line, err := range stream.Lines(in.Reader) {
			if err != nil {
				yield(model.Record{}, fmt.Errorf("%s: %w", in.File.Path, err))
				return
			}
			lineNo++

			rec, ok, err := parseLine(line)
			if err != nil {
				yield(model.Record{}, fmt.Errorf("%s:%d: %w", in.File.Path, lineNo, err))
				return
			}
			if !ok {
				continue
			}
			rec.SourceFile = in.File
			if rec.Kind != model.KindAlias && property != "" {
				rec.Property = property
			}
			if !yield(rec, nil) {
				return
			}
		}
	})
}

// parseLine parses one row. ok is false for blank and comment-only lines.
func parseLine(line string) (rec model.Record, ok bool, err error) {
	body, comment, _ := strings.Cut(line, "#")
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Record{}, false, nil
	}

	fields := strings.Split(body, ";")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 {
		return model.Record{}, false, fmt.Errorf("malformed line %q: expected at least two fields", line)
	}

	if comment = strings.TrimSpace(comment); comment != "" {
		rec.Metadata = map[string]string{"comment": comment}
	}

	first := fields[0]
	switch {
	case strings.Contains(first, ".."):
		start, end, _ := strings.Cut(first, "..")
		lo, err := parseCodePoint(start)
		if err != nil {
			return model.Record{}, false, err
		}
		hi, err := parseCodePoint(end)
		if err != nil {
			return model.Record{}, false, err
		}
		if lo > hi {
			return model.Record{}, false, fmt.Errorf("invalid range %s: start is after end", first)
		}
		rec.Kind, rec.Start, rec.End = model.KindRange, start, end

	case isCodePoint(first):
		rec.Kind, rec.CodePoint = model.KindPoint, first

	case isSequence(first):
		rec.Kind, rec.Sequence = model.KindSequence, strings.Fields(first)

	default:
		rec.Kind = model.KindAlias
		rec.Property = first
		rec.Value = fields[1]
		rec.Sequence = fields[1:]
		return rec, true, nil
	}

	rec.Value = fields[1]
	for i, extra := range fields[2:] {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string)
		}
		rec.Metadata["field"+strconv.Itoa(i+2)] = extra
	}
	return rec, true, nil
}

func parseCodePoint(s string) (int64, error) {
	if !isCodePoint(s) {
		return 0, fmt.Errorf("invalid code point %q", s)
	}
	v, _ := strconv.ParseInt(s, 16, 32)
	return v, nil
}

// isCodePoint reports whether s is 4 to 6 hex digits naming a code point.
func isCodePoint(s string) bool {
	if len(s) < 4 || len(s) > 6 {
		return false
	}
	v, err := strconv.ParseInt(s, 16, 32)
	return err == nil && v <= maxCodePoint
}

func isSequence(s string) bool {
	parts := strings.Fields(s)
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if !isCodePoint(p) {
			return false
		}
	}
	return true
}

// codePointValue returns the numeric value of a record's first code point,
// or -1 for alias records.
func codePointValue(r model.Record) int64 {
	v, err := strconv.ParseInt(r.FirstCodePoint(), 16, 32)
	if err != nil {
		return -1
	}
	return v
}

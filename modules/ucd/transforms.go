package ucd

import (
	"context"
	"strings"

	"github.com/vk/ucdpipe/internal/model"
	"github.com/vk/ucdpipe/internal/stream"
)

// DropEmpty removes records with an empty value.
func DropEmpty(_ context.Context, in stream.Seq, _ map[string]any) stream.Seq {
	return stream.Filter(in, func(r model.Record) bool {
		return r.Value != ""
	})
}

// SortCodePoint orders records by the numeric value of their first code
// point. It buffers the whole stream. Alias records sort first and keep
// their relative order.
func SortCodePoint(_ context.Context, in stream.Seq, _ map[string]any) stream.Seq {
	return stream.SortStable(in, func(a, b model.Record) bool {
		return codePointValue(a) < codePointValue(b)
	})
}

// Dedupe drops records whose kind, code points, property, and value repeat
// an earlier record. Metadata is ignored.
func Dedupe(_ context.Context, in stream.Seq, _ map[string]any) stream.Seq {
	seen := make(map[string]struct{})
	return stream.Filter(in, func(r model.Record) bool {
		key := dedupeKey(r)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

func dedupeKey(r model.Record) string {
	return strings.Join([]string{
		string(r.Kind),
		r.Start,
		r.End,
		r.CodePoint,
		strings.Join(r.Sequence, " "),
		r.Property,
		r.Value,
	}, "\x00")
}

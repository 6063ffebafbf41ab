// Package filter provides composable file predicates used by routes, sources,
// the fallback handler, and the pipeline-wide include filter.
//
// Predicates are plain function values. Combinators build new predicates from
// existing ones; nil predicates are treated as "accept everything" by Accepts.
package filter

import (
	"slices"

	"github.com/vk/ucdpipe/internal/model"
)

// RowContext carries optional row-level information for predicates that want
// to look at a parsed record as well as the file.
type RowContext struct {
	Record *model.Record
}

// Predicate decides whether a file (and optionally a row) is selected.
type Predicate func(file model.FileIdentity, row *RowContext) bool

// Accepts evaluates p against file, treating a nil predicate as a match.
func Accepts(p Predicate, file model.FileIdentity) bool {
	if p == nil {
		return true
	}
	return p(file, nil)
}

// Always matches every file.
func Always() Predicate {
	return func(model.FileIdentity, *RowContext) bool { return true }
}

// Never matches no file.
func Never() Predicate {
	return func(model.FileIdentity, *RowContext) bool { return false }
}

// And matches when every predicate matches. An empty And matches everything.
func And(ps ...Predicate) Predicate {
	return func(f model.FileIdentity, row *RowContext) bool {
		for _, p := range ps {
			if p != nil && !p(f, row) {
				return false
			}
		}
		return true
	}
}

// Or matches when at least one predicate matches. An empty Or matches nothing.
func Or(ps ...Predicate) Predicate {
	return func(f model.FileIdentity, row *RowContext) bool {
		for _, p := range ps {
			if p != nil && p(f, row) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(f model.FileIdentity, row *RowContext) bool {
		if p == nil {
			return false
		}
		return !p(f, row)
	}
}

// Name matches files whose base name is one of names.
func Name(names ...string) Predicate {
	return func(f model.FileIdentity, _ *RowContext) bool {
		return slices.Contains(names, f.Name)
	}
}

// Extension matches files by extension, including the leading dot.
func Extension(exts ...string) Predicate {
	return func(f model.FileIdentity, _ *RowContext) bool {
		return slices.Contains(exts, f.Extension)
	}
}

// Category matches files by directory category.
func Category(categories ...string) Predicate {
	return func(f model.FileIdentity, _ *RowContext) bool {
		return slices.Contains(categories, f.DirectoryCategory)
	}
}

// Version matches files belonging to one of the given versions.
func Version(versions ...string) Predicate {
	return func(f model.FileIdentity, _ *RowContext) bool {
		return slices.Contains(versions, f.Version)
	}
}

// Row matches when a row context is present and fn accepts its record.
// Without a row context the predicate matches, so row predicates can be
// combined with file predicates at file selection time.
func Row(fn func(model.Record) bool) Predicate {
	return func(_ model.FileIdentity, row *RowContext) bool {
		if row == nil || row.Record == nil {
			return true
		}
		return fn(*row.Record)
	}
}

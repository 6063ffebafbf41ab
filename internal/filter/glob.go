package filter

import (
	"path"
	"strings"

	"github.com/vk/ucdpipe/internal/model"
)

// Glob matches files against shell patterns. A pattern without a slash is
// matched against the file name only; a pattern containing a slash is matched
// against the full relative path, where "**" spans any number of directories.
// Invalid patterns never match.
func Glob(patterns ...string) Predicate {
	return func(f model.FileIdentity, _ *RowContext) bool {
		for _, p := range patterns {
			if MatchGlob(p, f.Path) {
				return true
			}
		}
		return false
	}
}

// MatchGlob reports whether relPath matches pattern using the Glob rules.
func MatchGlob(pattern, relPath string) bool {
	if !strings.Contains(pattern, "/") {
		ok, err := path.Match(pattern, path.Base(relPath))
		return err == nil && ok
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], parts[0])
		if err != nil || !ok {
			return false
		}
		pattern, parts = pattern[1:], parts[1:]
	}
	return len(parts) == 0
}

// FromGlobs builds an include predicate from patterns. It returns nil, the
// "no filter" value, when patterns is empty.
func FromGlobs(patterns []string) Predicate {
	if len(patterns) == 0 {
		return nil
	}
	return Glob(patterns...)
}

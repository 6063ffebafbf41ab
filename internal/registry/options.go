package registry

import "fmt"

// OptString reads a string option, returning def when absent.
func OptString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return def
}

// OptInt reads an integer option. Loaders may decode numbers as int, int64,
// or float64; all are accepted.
func OptInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptBool reads a boolean option.
func OptBool(opts map[string]any, key string, def bool) bool {
	if v, ok := opts[key].(bool); ok {
		return v
	}
	return def
}

// OptStrings reads a list of strings. Non-string elements are formatted
// with %v.
func OptStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			if s, ok := e.(string); ok {
				out[i] = s
			} else {
				out[i] = fmt.Sprint(e)
			}
		}
		return out
	}
	return nil
}

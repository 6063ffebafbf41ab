package config

import "context"

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads the declarations found under paths (files or directories)
	// and merges them into one Model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

package app

import (
	"errors"
	"fmt"
	"strings"
)

// Cache modes accepted by Config.Cache.
const (
	CacheMemory = "memory"
	CacheOff    = "off"
	// CacheSQLitePrefix is followed by the database path, e.g. "sqlite:out/cache.db".
	CacheSQLitePrefix = "sqlite:"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// WorkerCount overrides the pipeline's concurrency when positive.
	WorkerCount int

	Cache   string
	NoCache bool

	EventsURL    string
	ProvenanceDB string
	Watch        bool
	// Versions overrides the pipeline's version list when not empty.
	Versions []string
}

// NewConfig validates cfg and returns a copy with defaults applied.
func NewConfig(cfg Config) (*Config, error) {
	var errs []string
	if cfg.PipelinePath == "" {
		errs = append(errs, "PipelinePath is a required configuration field and cannot be empty")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "invalid log-format: must be 'text' or 'json'")
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	if cfg.Cache == "" {
		cfg.Cache = CacheMemory
	}
	if _, _, err := parseCacheSpec(cfg.Cache); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.WorkerCount < 0 {
		errs = append(errs, "invalid workers: must not be negative")
	}

	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return &cfg, nil
}

// parseCacheSpec splits a cache setting into its mode and, for sqlite, the
// database path.
func parseCacheSpec(spec string) (mode, path string, err error) {
	switch {
	case spec == CacheMemory, spec == CacheOff:
		return spec, "", nil
	case strings.HasPrefix(spec, CacheSQLitePrefix):
		path = strings.TrimPrefix(spec, CacheSQLitePrefix)
		if path == "" {
			return "", "", fmt.Errorf("invalid cache %q: sqlite needs a database path", spec)
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("invalid cache %q: must be 'memory', 'off', or 'sqlite:<path>'", spec)
	}
}

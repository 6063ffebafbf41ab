// Package cache defines the optional output cache consulted by the engine
// before it parses and resolves a (route, file) pair.
//
// # Why a Cache Exists
//
// Regenerating every version of the corpus on each run is wasteful when most
// files have not changed. The cache lets the engine skip the parse, transform
// and resolve steps for a pair it has already processed, replaying the stored
// outputs and artifacts instead.
//
// # Keys
//
// A key always carries the route id (one file can feed several routes with
// different outputs) and the version (one relative path can have different
// content across versions). When the source backend can hash a file, the
// hash is folded in too so edited files miss.
//
// # Disabled Runs
//
// A run with caching disabled never calls Get or Put, so the statistics of a
// store are left exactly as they were.
package cache

import (
	"context"
	"strings"

	"github.com/vk/ucdpipe/internal/model"
)

// Key identifies one cached (route, file, version) processing unit.
type Key struct {
	RouteID     string
	File        model.FileIdentity
	Version     string
	ContentHash string
}

// NewKey builds a key for routeID processing file.
func NewKey(routeID string, file model.FileIdentity, contentHash string) Key {
	return Key{RouteID: routeID, File: file, Version: file.Version, ContentHash: contentHash}
}

// String returns the canonical storage form of the key.
func (k Key) String() string {
	parts := []string{k.RouteID, k.Version, k.File.Path}
	if k.ContentHash != "" {
		parts = append(parts, k.ContentHash)
	}
	return strings.Join(parts, "|")
}

// Artifact is an artifact emitted while producing a cached entry. It is
// re-emitted on a hit so downstream routes still see it.
type Artifact struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Entry is the cached result of one processing unit.
type Entry struct {
	Outputs   []any      `json:"outputs"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Stats reports cache usage.
type Stats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// Store is the interface for cache backends.
//
// Implementations MUST be safe for concurrent use: every route task of a
// layer may call Get and Put at the same time.
type Store interface {
	// Get returns the entry stored under key. A missing entry is reported
	// with ok == false and counts as a miss; a present one counts as a hit.
	Get(ctx context.Context, key Key) (entry Entry, ok bool, err error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry Entry) error

	// Stats returns the current entry count and the hit/miss counters
	// accumulated by Get.
	Stats(ctx context.Context) (Stats, error)
}

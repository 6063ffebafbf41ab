package engine

import "sync"

// artifactValue is a published artifact and where it came from.
type artifactValue struct {
	value   any
	version string
	layer   int
}

// artifactTable holds the artifacts of one scope. Routes of the same layer
// publish concurrently, so writes take the lock; reads only ever observe
// values from earlier layers, which the layer barrier has already published.
type artifactTable struct {
	mu     sync.RWMutex
	values map[string]artifactValue
}

func newArtifactTable() *artifactTable {
	return &artifactTable{values: make(map[string]artifactValue)}
}

func (t *artifactTable) put(key string, v artifactValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = v
}

func (t *artifactTable) get(key string) (artifactValue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// snapshot returns a copy of the table. Later writes to t are not visible
// in the copy.
func (t *artifactTable) snapshot() *artifactTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := newArtifactTable()
	for k, v := range t.values {
		out.values[k] = v
	}
	return out
}

package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-memory Store.
//
// Entries live in a sync.Map keyed by Key.String(): each processing unit has
// its own key, so writers rarely touch the same entry.
type Memory struct {
	entries sync.Map // Key: string, Value: Entry
	count   atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key Key) (Entry, bool, error) {
	v, ok := m.entries.Load(key.String())
	if !ok {
		m.misses.Add(1)
		return Entry{}, false, nil
	}
	m.hits.Add(1)
	return cloneEntry(v.(Entry)), true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key Key, entry Entry) error {
	if _, loaded := m.entries.Swap(key.String(), cloneEntry(entry)); !loaded {
		m.count.Add(1)
	}
	return nil
}

// Stats implements Store.
func (m *Memory) Stats(context.Context) (Stats, error) {
	return Stats{
		Entries: int(m.count.Load()),
		Hits:    int(m.hits.Load()),
		Misses:  int(m.misses.Load()),
	}, nil
}

// cloneEntry copies the slices so callers cannot mutate stored entries. The
// values themselves are shared.
func cloneEntry(e Entry) Entry {
	return Entry{
		Outputs:   append([]any(nil), e.Outputs...),
		Artifacts: append([]Artifact(nil), e.Artifacts...),
	}
}

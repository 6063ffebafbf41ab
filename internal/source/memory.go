package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/ucdpipe/internal/model"
)

// Memory is an in-memory backend keyed by version and path.
type Memory struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte
}

// NewMemory creates a backend from version -> path -> content.
func NewMemory(files map[string]map[string]string) *Memory {
	m := &Memory{files: make(map[string]map[string][]byte)}
	for version, byPath := range files {
		for p, content := range byPath {
			m.Put(version, p, content)
		}
	}
	return m
}

// Put adds or replaces a file.
func (m *Memory) Put(version, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[version] == nil {
		m.files[version] = make(map[string][]byte)
	}
	id := model.NewFileIdentity(version, path)
	m.files[version][id.Path] = []byte(content)
}

// ListFiles returns the files of version sorted by path.
func (m *Memory) ListFiles(_ context.Context, version string) ([]model.FileIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files[version]))
	for p := range m.files[version] {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]model.FileIdentity, 0, len(paths))
	for _, p := range paths {
		out = append(out, model.NewFileIdentity(version, p))
	}
	return out, nil
}

// ReadFile returns the stored content.
func (m *Memory) ReadFile(_ context.Context, file model.FileIdentity) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[file.Version][file.Path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", file.Key())
	}
	return append([]byte(nil), data...), nil
}

// Metadata reports size and a sha256 of the content.
func (m *Memory) Metadata(ctx context.Context, file model.FileIdentity) (Metadata, error) {
	data, err := m.ReadFile(ctx, file)
	if err != nil {
		return Metadata{}, err
	}
	sum := sha256.Sum256(data)
	return Metadata{Size: int64(len(data)), Hash: hex.EncodeToString(sum[:])}, nil
}

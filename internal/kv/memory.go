package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sort"
	"sync"
)

// Memory is an in-process Store, used in tests and when no data
// directory is configured.
type Memory struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Store
func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set implements Store
func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.String()] = slices.Clone(value)
	return nil
}

// Delete implements Store
func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	return nil
}

// List implements Store. Matches are snapshotted when List is called.
func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefix.prefix()

	m.mu.RLock()
	var keys []string
	values := make(map[string][]byte)
	for k, v := range m.data {
		if len(p) == 0 || bytes.HasPrefix([]byte(k), p) {
			keys = append(keys, k)
			values[k] = slices.Clone(v)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: decodeKey([]byte(k)), Value: values[k]}, nil) {
				return
			}
		}
	}
}

// Close implements Store
func (m *Memory) Close() error {
	return nil
}

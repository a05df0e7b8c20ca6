package blob

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-backed Store.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	blobs map[Address][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[Address][]byte)}
}

func (m *Memory) Exists(_ context.Context, addr Address) (bool, error) {
	if err := addr.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[addr]
	return ok, nil
}

func (m *Memory) Create(_ context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[addr]; !ok {
		m.blobs[addr] = []byte{}
	}
	return nil
}

func (m *Memory) Write(_ context.Context, addr Address, data []byte) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[addr] = buf
	return nil
}

func (m *Memory) Read(_ context.Context, addr Address) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[addr]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", addr, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Remove(_ context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, addr)
	return nil
}

// Addresses returns every stored address ordered by name then index.
// Used by tests and the inspect command.
func (m *Memory) Addresses() []Address {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Address, 0, len(m.blobs))
	for addr := range m.blobs {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Index < out[j].Index
	})
	return out
}

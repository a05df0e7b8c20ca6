package store

import (
	"context"

	"github.com/roach88/evtrack/internal/event"
)

// MemoryStore keeps events in a slice. Nothing survives the process.
type MemoryStore struct {
	events []event.Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Store(_ context.Context, e event.Event) error {
	m.events = append(m.events, e)
	return nil
}

// AllEvents returns a copy of the buffered events.
func (m *MemoryStore) AllEvents(_ context.Context) ([]event.Event, error) {
	out := make([]event.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *MemoryStore) DeleteEvents(_ context.Context) error {
	clear(m.events)
	m.events = m.events[:0]
	return nil
}

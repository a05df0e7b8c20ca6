package store

import (
	"context"

	"github.com/roach88/evtrack/internal/event"
)

// EventStore buffers events until they are delivered.
//
// Implementations are not required to be safe for concurrent use; the
// tracker serializes every call through its lane.
type EventStore interface {
	// Store appends e. It never rejects an event based on its content.
	Store(ctx context.Context, e event.Event) error

	// AllEvents returns every buffered event in insertion order.
	AllEvents(ctx context.Context) ([]event.Event, error)

	// DeleteEvents removes every buffered event.
	DeleteEvents(ctx context.Context) error
}

// Closer is implemented by stores that hold state which must be persisted
// before the process exits.
type Closer interface {
	Close(ctx context.Context) error
}

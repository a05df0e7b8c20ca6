// Package flush delivers batches of events to an external sink.
//
// The tracker hands a Flusher a snapshot of every buffered event and clears
// its store only when Deliver returns nil. Any error is reported to the
// caller as a DeliveryError and the events stay buffered for the next flush.
package flush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/evtrack/internal/event"
)

// Flusher delivers events to a sink.
//
// Deliver must not modify events or keep a reference to the slice after it
// returns. It is called once per flush with the full ordered batch.
type Flusher interface {
	Deliver(ctx context.Context, events []event.Event) error
}

// Func adapts a function to the Flusher interface.
type Func func(ctx context.Context, events []event.Event) error

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, events []event.Event) error {
	return f(ctx, events)
}

// LogFlusher writes one line per event (its Describe output) to a writer.
// It never fails unless the writer does.
type LogFlusher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogFlusher creates a LogFlusher writing to w.
func NewLogFlusher(w io.Writer) *LogFlusher {
	return &LogFlusher{w: w}
}

// Deliver writes every event's description followed by a newline.
func (l *LogFlusher) Deliver(_ context.Context, events []event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range events {
		if _, err := fmt.Fprintln(l.w, e.Describe()); err != nil {
			return fmt.Errorf("log flusher: %w", err)
		}
	}
	slog.Debug("events delivered to log", "count", len(events))
	return nil
}

// ErrTimeout is returned by a WithTimeout flusher whose delivery ran too long.
var ErrTimeout = errors.New("delivery timed out")

// WithTimeout bounds every delivery of f to d. The inner flusher receives a
// context that is cancelled at the deadline; if it ignores the context its
// result is discarded and ErrTimeout is returned.
func WithTimeout(f Flusher, d time.Duration) Flusher {
	return Func(func(ctx context.Context, events []event.Event) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- f.Deliver(ctx, events)
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("%w after %s", ErrTimeout, d)
		}
	})
}

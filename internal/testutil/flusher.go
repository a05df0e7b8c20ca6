package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/evtrack/internal/event"
)

// ErrInjectedDelivery is returned by RecordingFlusher for failing attempts.
var ErrInjectedDelivery = errors.New("injected delivery failure")

// RecordingFlusher records every delivery attempt.
//
// Attempts are numbered from 1. Attempts listed with FailAttempts return
// ErrInjectedDelivery; their batches are recorded in Attempts but not in
// Delivered.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingFlusher struct {
	mu        sync.Mutex
	attempts  [][]event.Event
	delivered [][]event.Event
	fail      map[int]bool
	block     chan struct{}
	started   chan struct{}
}

// NewRecordingFlusher creates a flusher that succeeds on every attempt.
func NewRecordingFlusher() *RecordingFlusher {
	return &RecordingFlusher{fail: make(map[int]bool)}
}

// FailAttempts makes the given 1-based attempts fail.
func (f *RecordingFlusher) FailAttempts(attempts ...int) *RecordingFlusher {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range attempts {
		f.fail[a] = true
	}
	return f
}

// Block makes every following Deliver wait until Unblock is called.
// Started receives one value each time a blocked Deliver begins.
func (f *RecordingFlusher) Block() (started <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
	f.started = make(chan struct{}, 16)
	return f.started
}

// Unblock releases blocked deliveries.
func (f *RecordingFlusher) Unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

// Deliver records a copy of events.
func (f *RecordingFlusher) Deliver(_ context.Context, events []event.Event) error {
	batch := make([]event.Event, len(events))
	copy(batch, events)

	f.mu.Lock()
	block, started := f.block, f.started
	f.attempts = append(f.attempts, batch)
	attempt := len(f.attempts)
	fail := f.fail[attempt]
	if !fail {
		f.delivered = append(f.delivered, batch)
	}
	f.mu.Unlock()

	if block != nil {
		started <- struct{}{}
		<-block
	}

	if fail {
		return ErrInjectedDelivery
	}
	return nil
}

// Attempts returns every batch passed to Deliver.
func (f *RecordingFlusher) Attempts() [][]event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]event.Event(nil), f.attempts...)
}

// Delivered returns the batches of successful attempts.
func (f *RecordingFlusher) Delivered() [][]event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]event.Event(nil), f.delivered...)
}

// DeliveredEvents returns every successfully delivered event in order.
func (f *RecordingFlusher) DeliveredEvents() []event.Event {
	var out []event.Event
	for _, b := range f.Delivered() {
		out = append(out, b...)
	}
	return out
}

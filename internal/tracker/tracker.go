package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/policy"
	"github.com/roach88/evtrack/internal/schedule"
	"github.com/roach88/evtrack/internal/store"
)

// Config holds the collaborators of a Tracker.
type Config struct {
	// Store is required.
	Store store.EventStore

	// Flusher may be nil; Flush then fails with ErrNoFlusher.
	Flusher flush.Flusher

	// Policy is Manual when left zero.
	Policy policy.Policy

	// Scheduler arms the TimeInterval timer. Defaults to schedule.Ticker.
	Scheduler schedule.Scheduler
}

// Tracker accepts events and delivers them according to its flush policy.
//
// Thread-safety: Track, Flush, Clear and Close may be called from any
// goroutine. The store and flusher are only ever touched by the worker.
type Tracker struct {
	store     store.EventStore
	flusher   flush.Flusher
	policy    policy.Policy
	scheduler schedule.Scheduler

	queue *opQueue
	seq   atomic.Int64
	done  chan struct{}

	timerMu sync.Mutex
	timer   schedule.Timer
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a tracker and starts its worker.
func New(cfg Config) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, errors.New("tracker: store is required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.Ticker{}
	}

	t := &Tracker{
		store:     cfg.Store,
		flusher:   cfg.Flusher,
		policy:    cfg.Policy,
		scheduler: cfg.Scheduler,
		queue:     newOpQueue(),
		done:      make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// Policy returns the flush policy chosen at construction.
func (t *Tracker) Policy() policy.Policy {
	return t.policy
}

// Track stores e and applies the flush policy.
func (t *Tracker) Track(e event.Event) <-chan error {
	if e == nil {
		return completed(ErrNilEvent)
	}
	return t.submit(&op{kind: opTrack, event: e})
}

// Flush delivers every stored event and deletes them on success.
func (t *Tracker) Flush() <-chan error {
	return t.submit(&op{kind: opFlush})
}

// Clear deletes every stored event without delivering it.
func (t *Tracker) Clear() <-chan error {
	return t.submit(&op{kind: opClear})
}

// Sync completes once every operation submitted before it has finished,
// timer flushes included. It touches neither the store nor the flusher.
func (t *Tracker) Sync() <-chan error {
	return t.submit(&op{kind: opSync})
}

// Wait blocks until done yields the outcome of an operation or ctx ends.
// Cancelling ctx does not cancel the operation itself.
func Wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the interval timer, runs every operation already queued,
// waits for the worker, then closes the store if it supports it.
// Operations submitted after Close fail with ErrClosed.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() {
		t.timerMu.Lock()
		t.closed = true
		timer := t.timer
		t.timer = nil
		t.timerMu.Unlock()

		if timer != nil {
			timer.Stop()
		}

		t.queue.Close()
		<-t.done

		if c, ok := t.store.(store.Closer); ok {
			if err := c.Close(context.Background()); err != nil {
				t.closeErr = fmt.Errorf("closing store: %w", err)
			}
		}
		slog.Debug("tracker closed", "ops", t.seq.Load())
	})
	return t.closeErr
}

func (t *Tracker) submit(o *op) <-chan error {
	o.done = make(chan error, 1)
	if !t.queue.Enqueue(o) {
		o.done <- ErrClosed
	}
	return o.done
}

func completed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// run is the lane worker. It is the only goroutine that touches the store
// and the flusher.
func (t *Tracker) run() {
	defer close(t.done)
	ctx := context.Background()

	for {
		o, ok := t.queue.TryDequeue()
		if ok {
			o.seq = t.seq.Add(1)
			slog.Debug("processing op", "seq", o.seq, "op", o.kind, "timer", o.timer)

			err := t.process(ctx, o)
			if err != nil {
				logOpError(o, err)
			}
			o.done <- err
			continue
		}

		// The signal channel closes with the queue. A closed queue accepts
		// nothing new, so an empty closed queue is final.
		if _, open := <-t.queue.Wait(); !open && t.queue.Len() == 0 {
			return
		}
	}
}

func (t *Tracker) process(ctx context.Context, o *op) error {
	switch o.kind {
	case opTrack:
		return t.track(ctx, o.event)
	case opFlush:
		return t.flush(ctx)
	case opClear:
		return t.clear(ctx)
	case opSync:
		return nil
	default:
		return fmt.Errorf("unknown op kind %d", o.kind)
	}
}

func (t *Tracker) track(ctx context.Context, e event.Event) error {
	if err := t.store.Store(ctx, e); err != nil {
		return fmt.Errorf("track: %w", err)
	}

	switch t.policy.Kind() {
	case policy.KindEventLimit:
		events, err := t.store.AllEvents(ctx)
		if err != nil {
			return fmt.Errorf("track: counting events: %w", err)
		}
		if len(events) >= t.policy.Limit() {
			slog.Debug("event limit reached", "count", len(events), "limit", t.policy.Limit())
			return t.deliver(ctx, events)
		}
	case policy.KindTimeInterval:
		t.armTimer()
	}
	return nil
}

// armTimer starts the interval timer once per tracker lifetime.
func (t *Tracker) armTimer() {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()

	if t.closed || t.timer != nil {
		return
	}
	t.timer = t.scheduler.Every(t.policy.Interval(), t.tick)
	slog.Debug("flush timer armed", "interval", t.policy.Interval())
}

// tick queues one flush. Nobody waits on its outcome; failures are logged
// by the worker.
func (t *Tracker) tick() {
	t.queue.Enqueue(&op{kind: opFlush, timer: true, done: make(chan error, 1)})
}

func (t *Tracker) flush(ctx context.Context) error {
	events, err := t.store.AllEvents(ctx)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return t.deliver(ctx, events)
}

// deliver hands events to the flusher and deletes them from the store on
// success. An empty batch succeeds without calling the flusher.
func (t *Tracker) deliver(ctx context.Context, events []event.Event) error {
	if t.flusher == nil {
		return fmt.Errorf("flush: %w", ErrNoFlusher)
	}
	if len(events) == 0 {
		return nil
	}

	if err := t.flusher.Deliver(ctx, events); err != nil {
		return fmt.Errorf("flush: %w", &flush.DeliveryError{Count: len(events), Err: err})
	}
	slog.Info("events flushed", "count", len(events))

	if err := t.store.DeleteEvents(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (t *Tracker) clear(ctx context.Context) error {
	if err := t.store.DeleteEvents(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// logOpError records a failed operation. Timer flushes have no caller, so
// they are logged at error level; caller operations report through their
// completion channel and are logged at debug level.
func logOpError(o *op, err error) {
	if o.timer {
		slog.Error("scheduled flush failed",
			"error", err,
			"seq", o.seq,
		)
		return
	}
	slog.Debug("op failed",
		"error", err,
		"seq", o.seq,
		"op", o.kind,
	)
}

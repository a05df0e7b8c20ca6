package tracker

import (
	"sync"

	"github.com/roach88/evtrack/internal/event"
)

// opKind distinguishes lane operations.
type opKind int

const (
	opTrack opKind = iota + 1
	opFlush
	opClear
	opSync
)

func (k opKind) String() string {
	switch k {
	case opTrack:
		return "track"
	case opFlush:
		return "flush"
	case opClear:
		return "clear"
	case opSync:
		return "sync"
	default:
		return "unknown"
	}
}

// op is one queued operation.
type op struct {
	kind  opKind
	event event.Event // opTrack only
	seq   int64
	timer bool // flush fired by the interval timer
	done  chan error
}

// opQueue is a thread-safe unbounded FIFO queue of operations.
//
// Unbounded so that callers never block on submission; the lane applies
// back-pressure only through the completion channels.
//
// The queue uses a channel for signaling so the worker can wait without
// polling.
type opQueue struct {
	mu     sync.Mutex
	ops    []*op
	closed bool
	signal chan struct{} // Signals op availability (buffered, size 1)
}

func newOpQueue() *opQueue {
	return &opQueue{
		ops:    make([]*op, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an op to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *opQueue) Enqueue(o *op) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ops = append(q.ops, o)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front op without blocking.
// Returns (nil, false) if the queue is empty.
func (q *opQueue) TryDequeue() (*op, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return nil, false
	}

	o := q.ops[0]

	// Nil out the slot so the event can be collected.
	q.ops[0] = nil

	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}

	return o, true
}

// Wait returns a channel that signals when ops may be available.
// The channel is closed by Close.
func (q *opQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Close signals that no more ops will be enqueued.
// Ops already queued remain available to TryDequeue.
func (q *opQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

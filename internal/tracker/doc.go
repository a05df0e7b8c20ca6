// Package tracker implements the event tracker: the orchestrator that owns
// one EventStore, one Flusher and one flush policy.
//
// ARCHITECTURE:
//
// Single Lane:
// Every operation (Track, Flush, Clear, Sync, and flushes fired by the
// interval timer) is appended to one FIFO queue. A single worker goroutine dequeues
// operations one at a time and runs each to completion, store writes,
// delivery and delete included, before starting the next. This gives:
//   - No concurrent mutation of the store's batch buffer
//   - A Clear can never interleave with an in-flight Flush
//   - Events reach the flusher in submission order
//
// Operation Flow:
//  1. Caller submits an operation and receives a completion channel
//  2. The worker dequeues it in submission order
//  3. Track: store the event, then apply the flush policy
//  4. Flush: read all events, deliver, delete on success
//  5. The outcome is sent on the completion channel, the next operation starts
//
// Failures are reported only on the failing operation's channel; the lane
// always moves on. There is no retry and no timeout: events left by a failed
// flush are retried by the next flush, and a stalled flusher stalls the lane.
//
// Flush Policy:
//   - Manual: flush only on request
//   - EventLimit(n): after each stored event, flush if the store holds >= n
//     events; the triggering event is part of the flushed batch
//   - TimeInterval(d): the first tracked event arms one recurring timer; each
//     tick queues one flush
//
// A flush over an empty store succeeds without calling the flusher.
package tracker

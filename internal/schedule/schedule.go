// Package schedule provides the recurring-callback capability the tracker
// uses for interval flushes.
package schedule

import (
	"sync"
	"time"
)

// Timer is a handle to an armed recurring callback.
type Timer interface {
	// Stop cancels the timer. After Stop returns no further callback starts.
	// Stop is idempotent.
	Stop()
}

// Scheduler arms recurring callbacks.
type Scheduler interface {
	// Every calls fn once per period until the returned Timer is stopped.
	Every(period time.Duration, fn func()) Timer
}

// Ticker is the production Scheduler, backed by time.Ticker.
type Ticker struct{}

// Every starts a goroutine that calls fn on each tick.
// Ticks that arrive while fn is still running are dropped, as with time.Ticker.
func (Ticker) Every(period time.Duration, fn func()) Timer {
	t := &tickerTimer{
		ticker: time.NewTicker(period),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) loop(fn func()) {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			// Prefer stop when both are ready.
			select {
			case <-t.stop:
				return
			default:
			}
			fn()
		}
	}
}

// Stop halts the ticker and waits for an in-progress callback to return.
func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
	<-t.done
}

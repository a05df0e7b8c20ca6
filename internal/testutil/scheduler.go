package testutil

import (
	"sync"
	"time"

	"github.com/roach88/evtrack/internal/schedule"
)

// ManualScheduler is a schedule.Scheduler whose timers fire only when a test
// calls Fire.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// NewManualScheduler creates a scheduler with no armed timers.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every records the timer; fn runs only on Fire.
func (s *ManualScheduler) Every(period time.Duration, fn func()) schedule.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ManualTimer{Period: period, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Armed returns the number of timers ever armed, stopped ones included.
func (s *ManualScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Timers returns every timer ever armed, in arming order.
func (s *ManualScheduler) Timers() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ManualTimer, len(s.timers))
	copy(out, s.timers)
	return out
}

// Fire invokes the callback of every running timer once.
// Returns the number of callbacks invoked.
func (s *ManualScheduler) Fire() int {
	fired := 0
	for _, t := range s.Timers() {
		if t.fire() {
			fired++
		}
	}
	return fired
}

// ManualTimer is the handle returned by ManualScheduler.Every.
type ManualTimer struct {
	Period time.Duration

	mu      sync.Mutex
	fn      func()
	stopped bool
}

// Stop prevents further callbacks.
func (t *ManualTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop was called.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *ManualTimer) fire() bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return false
	}
	fn := t.fn
	t.mu.Unlock()

	fn()
	return true
}

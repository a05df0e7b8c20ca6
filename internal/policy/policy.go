// Package policy defines when a tracker flushes automatically.
package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the flush policies.
type Kind int

const (
	// KindManual never flushes automatically.
	KindManual Kind = iota
	// KindEventLimit flushes once the store holds at least Limit events.
	KindEventLimit
	// KindTimeInterval flushes every Interval once the first event is tracked.
	KindTimeInterval
)

// Policy is an immutable flush rule. The zero value is Manual.
type Policy struct {
	kind     Kind
	limit    int
	interval time.Duration
}

// Manual returns the policy that only flushes on explicit request.
func Manual() Policy {
	return Policy{kind: KindManual}
}

// EventLimit returns a policy that flushes when the store holds n events.
// Panics if n <= 0; use Parse for untrusted input.
func EventLimit(n int) Policy {
	if n <= 0 {
		panic(fmt.Sprintf("policy: event limit must be positive, got %d", n))
	}
	return Policy{kind: KindEventLimit, limit: n}
}

// TimeInterval returns a policy that flushes every d.
// Panics if d <= 0; use Parse for untrusted input.
func TimeInterval(d time.Duration) Policy {
	if d <= 0 {
		panic(fmt.Sprintf("policy: interval must be positive, got %s", d))
	}
	return Policy{kind: KindTimeInterval, interval: d}
}

// Kind returns the policy kind.
func (p Policy) Kind() Kind { return p.kind }

// Limit returns the event limit, or 0 for other kinds.
func (p Policy) Limit() int { return p.limit }

// Interval returns the flush interval, or 0 for other kinds.
func (p Policy) Interval() time.Duration { return p.interval }

// String renders the policy in the form accepted by Parse.
func (p Policy) String() string {
	switch p.kind {
	case KindEventLimit:
		return "limit:" + strconv.Itoa(p.limit)
	case KindTimeInterval:
		return "interval:" + p.interval.String()
	default:
		return "manual"
	}
}

// Parse reads "manual", "limit:N" or "interval:D" (D in time.ParseDuration
// syntax). Empty input is Manual.
func Parse(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "manual" {
		return Manual(), nil
	}

	kind, arg, ok := strings.Cut(s, ":")
	if !ok {
		return Policy{}, fmt.Errorf("invalid flush policy %q: want manual, limit:N or interval:D", s)
	}

	switch kind {
	case "limit":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid flush policy %q: %w", s, err)
		}
		if n <= 0 {
			return Policy{}, fmt.Errorf("invalid flush policy %q: limit must be positive", s)
		}
		return EventLimit(n), nil

	case "interval":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid flush policy %q: %w", s, err)
		}
		if d <= 0 {
			return Policy{}, fmt.Errorf("invalid flush policy %q: interval must be positive", s)
		}
		return TimeInterval(d), nil

	default:
		return Policy{}, fmt.Errorf("invalid flush policy %q: unknown kind %q", s, kind)
	}
}

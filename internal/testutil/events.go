package testutil

import (
	"fmt"

	"github.com/roach88/evtrack/internal/event"
)

// Records returns n records named "e1".."en" with IDs "evt-1".."evt-n".
func Records(n int) []event.Event {
	out := make([]event.Event, n)
	for i := range out {
		out[i] = event.Record{
			ID:   fmt.Sprintf("evt-%d", i+1),
			Name: fmt.Sprintf("e%d", i+1),
		}
	}
	return out
}

// Names returns the Name of every record in events, in order.
// Panics if an event is not an event.Record.
func Names(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.(event.Record).Name
	}
	return out
}

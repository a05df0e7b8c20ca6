package harness

import (
	"fmt"
	"strings"
)

// TraceEntry records one executed step and the deliveries it caused.
type TraceEntry struct {
	Step       int        `json:"step"`
	Op         string     `json:"op"`
	Outcome    string     `json:"outcome"` // "ok" or an error code
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

// Delivery is one flusher attempt.
type Delivery struct {
	Events []string `json:"events"`
	OK     bool     `json:"ok"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	Name   string `json:"name"`
	Policy string `json:"policy"`
	Store  string `json:"store"`

	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	Trace []TraceEntry `json:"trace"`

	// Stored holds the names of the events left in the store.
	Stored []string `json:"stored"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Trace:  []TraceEntry{},
		Stored: []string{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Render formats the trace for golden comparison. Expectation failures are
// not part of the rendering.
func (r *Result) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", r.Name)
	fmt.Fprintf(&b, "policy: %s\n", r.Policy)
	fmt.Fprintf(&b, "store: %s\n", r.Store)
	for _, e := range r.Trace {
		fmt.Fprintf(&b, "%d %s -> %s\n", e.Step, e.Op, e.Outcome)
		for _, d := range e.Deliveries {
			outcome := "ok"
			if !d.OK {
				outcome = "failed"
			}
			fmt.Fprintf(&b, "  deliver [%s] -> %s\n", strings.Join(d.Events, " "), outcome)
		}
	}
	fmt.Fprintf(&b, "stored: [%s]\n", strings.Join(r.Stored, " "))

	return b.String()
}

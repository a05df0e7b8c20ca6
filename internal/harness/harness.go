package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/evtrack/internal/blob"
	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/policy"
	"github.com/roach88/evtrack/internal/store"
	"github.com/roach88/evtrack/internal/testutil"
	"github.com/roach88/evtrack/internal/tracker"
)

// batchStoreName names the batch store inside the scenario's blob database.
const batchStoreName = "events"

// stepTimeout bounds each step so a stalled tracker fails the scenario
// instead of hanging it.
const stepTimeout = 10 * time.Second

// Harness is the scenario execution engine.
// It drives a real Tracker with deterministic collaborators.
type Harness struct {
	scenario *Scenario
	policy   policy.Policy
	failing  map[int]bool

	blobs   *blob.SQLite
	store   store.EventStore
	tracker *tracker.Tracker
	flusher *testutil.RecordingFlusher
	sched   *testutil.ManualScheduler
	ids     *event.SequenceGenerator
	logger  *slog.Logger

	traced int // flusher attempts already attached to a trace entry
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory SQLite blob database for
// isolation. An error is returned only when the scenario cannot be executed;
// failed expectations are reported in the result.
//
// Execution flow:
// 1. Open the blob database and the scenario's store
// 2. Start a tracker with a manual scheduler and a recording flusher
// 3. Execute steps, attaching the deliveries each step caused
// 4. Read the remaining events and check the expectations
func Run(scenario *Scenario) (*Result, error) {
	p, err := policy.Parse(scenario.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	blobs, err := blob.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory blob store: %w", err)
	}
	defer blobs.Close()

	h := &Harness{
		scenario: scenario,
		policy:   p,
		failing:  make(map[int]bool),
		blobs:    blobs,
		flusher:  testutil.NewRecordingFlusher().FailAttempts(scenario.FailDeliveries...),
		sched:    testutil.NewManualScheduler(),
		ids:      event.NewSequenceGenerator("evt"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, n := range scenario.FailDeliveries {
		h.failing[n] = true
	}

	ctx := context.Background()
	if err := h.start(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = h.tracker.Close() }()

	result := NewResult(scenario.Name)
	result.Policy = p.String()
	result.Store = describeStore(scenario.Store)

	for i, step := range scenario.Steps {
		entry, opErr, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, entry)

		got := tracker.Code(opErr)
		switch {
		case step.ExpectError == "" && opErr != nil:
			result.AddError("step %d (%s): unexpected error: %v", entry.Step, entry.Op, opErr)
		case step.ExpectError != "" && got != step.ExpectError:
			result.AddError("step %d (%s): expected error %s, got %s", entry.Step, entry.Op, step.ExpectError, outcome(opErr))
		}

		h.logger.Info("step completed",
			"step", entry.Step,
			"op", entry.Op,
			"outcome", entry.Outcome,
			"deliveries", len(entry.Deliveries),
		)
	}

	all, err := h.store.AllEvents(ctx)
	if err != nil {
		result.AddError("reading stored events: %v", err)
	} else {
		result.Stored = eventNames(all)
	}

	if scenario.ExpectStored != nil && !slices.Equal(scenario.ExpectStored, result.Stored) {
		result.AddError("stored events: expected %v, got %v", scenario.ExpectStored, result.Stored)
	}

	if scenario.ExpectDelivered != nil {
		var delivered [][]string
		for _, batch := range h.flusher.Delivered() {
			delivered = append(delivered, eventNames(batch))
		}
		if !slices.EqualFunc(scenario.ExpectDelivered, delivered, func(a, b []string) bool { return slices.Equal(a, b) }) {
			result.AddError("delivered batches: expected %v, got %v", scenario.ExpectDelivered, delivered)
		}
	}

	return result, nil
}

// start opens the scenario's store on the shared blob database and starts
// a tracker over it.
func (h *Harness) start(ctx context.Context) error {
	switch h.scenario.Store.Kind {
	case StoreBatch:
		s, err := store.OpenBatchStore(ctx, h.blobs, batchStoreName, h.scenario.Store.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to open batch store: %w", err)
		}
		h.store = s
	default:
		h.store = store.NewMemoryStore()
	}

	t, err := tracker.New(tracker.Config{
		Store:     h.store,
		Flusher:   h.flusher,
		Policy:    h.policy,
		Scheduler: h.sched,
	})
	if err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}
	h.tracker = t
	return nil
}

// execute runs one step. opErr is the tracker's outcome for the step; err
// means the harness itself could not continue.
func (h *Harness) execute(ctx context.Context, n int, step Step) (entry TraceEntry, opErr error, err error) {
	entry.Step = n

	switch step.action() {
	case "track":
		rec := event.NewRecord(h.ids, step.Track, step.Props)
		entry.Op = "track " + rec.Describe()
		opErr = h.await(ctx, h.tracker.Track(rec))

	case "flush":
		entry.Op = "flush"
		opErr = h.await(ctx, h.tracker.Flush())

	case "clear":
		entry.Op = "clear"
		opErr = h.await(ctx, h.tracker.Clear())

	case "tick":
		fired := h.sched.Fire()
		entry.Op = fmt.Sprintf("tick timers=%d", fired)
		// Tick flushes report nowhere; Sync waits for them to finish.
		if err := h.await(ctx, h.tracker.Sync()); err != nil {
			return entry, nil, err
		}

	case "restart":
		entry.Op = "restart"
		if err := h.tracker.Close(); err != nil {
			return entry, nil, fmt.Errorf("closing tracker: %w", err)
		}
		if err := h.start(ctx); err != nil {
			return entry, nil, err
		}

	default:
		return entry, nil, fmt.Errorf("step has no single action")
	}

	entry.Outcome = outcome(opErr)
	entry.Deliveries = h.newDeliveries()
	return entry, opErr, nil
}

func (h *Harness) await(ctx context.Context, done <-chan error) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return tracker.Wait(ctx, done)
}

// newDeliveries returns the flusher attempts made since the last call.
func (h *Harness) newDeliveries() []Delivery {
	attempts := h.flusher.Attempts()

	var out []Delivery
	for ; h.traced < len(attempts); h.traced++ {
		out = append(out, Delivery{
			Events: eventNames(attempts[h.traced]),
			OK:     !h.failing[h.traced+1],
		})
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return tracker.Code(err)
}

func describeStore(s StoreSpec) string {
	if s.Kind == StoreBatch {
		return fmt.Sprintf("batch size=%d", s.BatchSize)
	}
	return StoreMemory
}

func eventNames(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		if rec, ok := e.(event.Record); ok {
			out[i] = rec.Name
		} else {
			out[i] = e.Describe()
		}
	}
	return out
}

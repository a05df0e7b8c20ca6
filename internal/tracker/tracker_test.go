package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evtrack/internal/blob"
	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/policy"
	"github.com/roach88/evtrack/internal/store"
	"github.com/roach88/evtrack/internal/testutil"
)

// newTestTracker creates a tracker that is closed when the test ends.
func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	tr, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// await waits for one operation outcome with a test-sized deadline.
func await(t *testing.T, done <-chan error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Wait(ctx, done)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "operation never completed")
	return err
}

func trackAll(t *testing.T, tr *Tracker, events []event.Event) {
	t.Helper()
	for i, e := range events {
		require.NoError(t, await(t, tr.Track(e)), "track event %d", i)
	}
}

func storedNames(t *testing.T, s store.EventStore) []string {
	t.Helper()
	all, err := s.AllEvents(context.Background())
	require.NoError(t, err)
	return testutil.Names(all)
}

func openBatch(t *testing.T, blobs blob.Store, batchSize int) *store.BatchStore {
	t.Helper()
	s, err := store.OpenBatchStore(context.Background(), blobs, "events", batchSize)
	require.NoError(t, err)
	return s
}

func batchAddr(i int) blob.Address {
	return blob.Address{Name: "events", Index: i}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{Flusher: testutil.NewRecordingFlusher()})
	require.Error(t, err)
}

func TestTrack_NilEvent(t *testing.T) {
	tr := newTestTracker(t, Config{Store: store.NewMemoryStore()})
	assert.ErrorIs(t, await(t, tr.Track(nil)), ErrNilEvent)
}

func TestManual_StoresWithoutFlushing(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f, Policy: policy.Manual()})

	trackAll(t, tr, testutil.Records(7))

	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"}, storedNames(t, s))
	assert.Empty(t, f.Attempts(), "manual policy must never call the flusher on its own")
}

func TestFlush_DeliversInOrderAndEmptiesStore(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(5))
	require.NoError(t, await(t, tr.Flush()))

	require.Len(t, f.Delivered(), 1)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5"}, testutil.Names(f.Delivered()[0]))
	assert.Empty(t, storedNames(t, s))
}

func TestFlush_EmptyStoreSkipsFlusher(t *testing.T) {
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: store.NewMemoryStore(), Flusher: f})

	require.NoError(t, await(t, tr.Flush()))
	assert.Empty(t, f.Attempts())
}

func TestFlush_NoFlusherKeepsEvents(t *testing.T) {
	s := store.NewMemoryStore()
	tr := newTestTracker(t, Config{Store: s})

	trackAll(t, tr, testutil.Records(2))

	err := await(t, tr.Flush())
	assert.ErrorIs(t, err, ErrNoFlusher)
	assert.Equal(t, []string{"e1", "e2"}, storedNames(t, s))
}

func TestEventLimit_FlushesOnNthTrack(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f, Policy: policy.EventLimit(3)})

	events := testutil.Records(3)
	require.NoError(t, await(t, tr.Track(events[0])))
	require.NoError(t, await(t, tr.Track(events[1])))
	assert.Empty(t, f.Attempts(), "below the limit nothing is delivered")

	require.NoError(t, await(t, tr.Track(events[2])))

	// The delivery happened before the third completion fired.
	require.Len(t, f.Delivered(), 1)
	assert.Equal(t, []string{"e1", "e2", "e3"}, testutil.Names(f.Delivered()[0]))
	assert.Empty(t, storedNames(t, s))
}

func TestEventLimit_RepeatsAndLeavesRemainder(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f, Policy: policy.EventLimit(2)})

	trackAll(t, tr, testutil.Records(5))

	batches := f.Delivered()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"e1", "e2"}, testutil.Names(batches[0]))
	assert.Equal(t, []string{"e3", "e4"}, testutil.Names(batches[1]))
	assert.Equal(t, []string{"e5"}, storedNames(t, s))
}

func TestEventLimit_FailedDeliveryRetriedByNextTrigger(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher().FailAttempts(1)
	tr := newTestTracker(t, Config{Store: s, Flusher: f, Policy: policy.EventLimit(2)})

	events := testutil.Records(3)
	require.NoError(t, await(t, tr.Track(events[0])))

	err := await(t, tr.Track(events[1]))
	require.True(t, flush.IsDeliveryFailure(err), "got %v", err)
	assert.Equal(t, []string{"e1", "e2"}, storedNames(t, s))

	require.NoError(t, await(t, tr.Track(events[2])))
	require.Len(t, f.Delivered(), 1)
	assert.Equal(t, []string{"e1", "e2", "e3"}, testutil.Names(f.Delivered()[0]))
	assert.Empty(t, storedNames(t, s))
}

func TestTimeInterval_ArmsOneTimer(t *testing.T) {
	sched := testutil.NewManualScheduler()
	tr := newTestTracker(t, Config{
		Store:     store.NewMemoryStore(),
		Flusher:   testutil.NewRecordingFlusher(),
		Policy:    policy.TimeInterval(30 * time.Second),
		Scheduler: sched,
	})

	assert.Equal(t, 0, sched.Armed(), "no timer before the first event")

	trackAll(t, tr, testutil.Records(10))

	require.Equal(t, 1, sched.Armed())
	assert.Equal(t, 30*time.Second, sched.Timers()[0].Period)
}

func TestTimeInterval_EachFireFlushesOnce(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	sched := testutil.NewManualScheduler()
	tr := newTestTracker(t, Config{
		Store:     s,
		Flusher:   f,
		Policy:    policy.TimeInterval(time.Minute),
		Scheduler: sched,
	})

	events := testutil.Records(4)
	trackAll(t, tr, events[:3])

	require.Equal(t, 1, sched.Fire())
	require.NoError(t, await(t, tr.Sync()))
	require.Len(t, f.Attempts(), 1)
	assert.Equal(t, []string{"e1", "e2", "e3"}, testutil.Names(f.Delivered()[0]))

	// A tick over an empty store delivers nothing.
	require.Equal(t, 1, sched.Fire())
	require.NoError(t, await(t, tr.Sync()))
	assert.Len(t, f.Attempts(), 1)

	require.NoError(t, await(t, tr.Track(events[3])))
	require.Equal(t, 1, sched.Fire())
	require.NoError(t, await(t, tr.Sync()))
	require.Len(t, f.Attempts(), 2)
	assert.Equal(t, []string{"e4"}, testutil.Names(f.Delivered()[1]))
	assert.Equal(t, 1, sched.Armed(), "later events never arm a second timer")
}

func TestTimeInterval_RealTicker(t *testing.T) {
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{
		Store:   store.NewMemoryStore(),
		Flusher: f,
		Policy:  policy.TimeInterval(5 * time.Millisecond),
	})

	trackAll(t, tr, testutil.Records(2))

	assert.Eventually(t, func() bool { return len(f.DeliveredEvents()) == 2 }, 5*time.Second, time.Millisecond)
}

func TestClear_Twice(t *testing.T) {
	s := openBatch(t, blob.NewMemory(), 2)
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(5))

	require.NoError(t, await(t, tr.Clear()))
	require.NoError(t, await(t, tr.Clear()))
	assert.Empty(t, storedNames(t, s))
	assert.Empty(t, f.Attempts(), "clear never delivers")
}

func TestEventLimit_EmptyNameDoesNotBlockFlushes(t *testing.T) {
	s := openBatch(t, blob.NewMemory(), 1)
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f, Policy: policy.EventLimit(3)})

	events := append([]event.Event{event.Record{ID: "x"}}, testutil.Records(2)...)
	trackAll(t, tr, events)

	require.Len(t, f.Delivered(), 1)
	assert.Equal(t, []string{"", "e1", "e2"}, testutil.Names(f.Delivered()[0]))
	assert.Empty(t, storedNames(t, s))
}

func TestDeliveryFailure_KeepsEvents(t *testing.T) {
	s := openBatch(t, blob.NewMemory(), 2)
	f := testutil.NewRecordingFlusher().FailAttempts(1)
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(3))

	err := await(t, tr.Flush())
	require.Error(t, err)
	assert.True(t, flush.IsDeliveryFailure(err))
	assert.ErrorIs(t, err, testutil.ErrInjectedDelivery)
	assert.Equal(t, []string{"e1", "e2", "e3"}, storedNames(t, s))

	// The next flush delivers the same events.
	require.NoError(t, await(t, tr.Flush()))
	require.Len(t, f.Delivered(), 1)
	assert.Equal(t, []string{"e1", "e2", "e3"}, testutil.Names(f.Delivered()[0]))
	assert.Empty(t, storedNames(t, s))
}

func TestFlush_ReadFailureSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewFaultyBlobs(blob.NewMemory())
	s := openBatch(t, blobs, 2)
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(4))
	require.NoError(t, blobs.Corrupt(ctx, batchAddr(1)))

	err := await(t, tr.Flush())
	assert.True(t, store.IsReadFailure(err), "got %v", err)
	assert.Empty(t, f.Attempts(), "nothing is delivered when the read fails")
}

func TestFlush_DeleteFailureAfterDelivery(t *testing.T) {
	blobs := testutil.NewFaultyBlobs(blob.NewMemory())
	s := openBatch(t, blobs, 2)
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(5))
	blobs.FailRemove(batchAddr(0))

	err := await(t, tr.Flush())
	assert.True(t, store.IsDeleteFailure(err), "got %v", err)
	assert.False(t, flush.IsDeliveryFailure(err))
	require.Len(t, f.Delivered(), 1, "delivery happened before the delete failed")

	// Delivered events are not offered again.
	assert.Empty(t, storedNames(t, s))
}

func TestTrack_StoreFailureDoesNotStopLane(t *testing.T) {
	blobs := testutil.NewFaultyBlobs(blob.NewMemory())
	s := openBatch(t, blobs, 1)
	tr := newTestTracker(t, Config{Store: s, Flusher: testutil.NewRecordingFlusher()})

	blobs.FailWrite(batchAddr(0))
	events := testutil.Records(2)

	err := await(t, tr.Track(events[0]))
	assert.True(t, store.IsWriteFailure(err), "got %v", err)

	blobs.Heal()
	require.NoError(t, await(t, tr.Track(events[1])))
	assert.Equal(t, []string{"e2"}, storedNames(t, s))
}

func TestLane_ClearWaitsForInFlightFlush(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	events := testutil.Records(2)
	require.NoError(t, await(t, tr.Track(events[0])))

	started := f.Block()
	flushDone := tr.Flush()
	<-started

	clearDone := tr.Clear()
	trackDone := tr.Track(events[1])

	select {
	case err := <-clearDone:
		t.Fatalf("clear completed while a flush was in flight: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	f.Unblock()
	require.NoError(t, await(t, flushDone))
	require.NoError(t, await(t, clearDone))
	require.NoError(t, await(t, trackDone))

	assert.Equal(t, []string{"e1"}, testutil.Names(f.DeliveredEvents()))
	assert.Equal(t, []string{"e2"}, storedNames(t, s))
}

func TestLane_ConcurrentSubmissionKeepsPerCallerOrder(t *testing.T) {
	s := store.NewMemoryStore()
	tr := newTestTracker(t, Config{Store: s})

	const callers, perCaller = 20, 25

	var wg sync.WaitGroup
	errs := make(chan error, callers*perCaller)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			var pending []<-chan error
			for i := 0; i < perCaller; i++ {
				rec := event.Record{ID: fmt.Sprintf("c%d-%d", c, i), Name: fmt.Sprintf("c%d", c)}
				pending = append(pending, tr.Track(rec))
			}
			for _, done := range pending {
				errs <- <-done
			}
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.AllEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, all, callers*perCaller)

	seen := make(map[string]bool)
	next := make(map[string]int)
	for _, e := range all {
		rec := e.(event.Record)
		require.False(t, seen[rec.ID], "duplicate event %s", rec.ID)
		seen[rec.ID] = true

		want := fmt.Sprintf("%s-%d", rec.Name, next[rec.Name])
		assert.Equal(t, want, rec.ID, "caller %s events out of order", rec.Name)
		next[rec.Name]++
	}
}

func TestLane_MixedOperationsAllComplete(t *testing.T) {
	tr := newTestTracker(t, Config{Store: store.NewMemoryStore(), Flusher: testutil.NewRecordingFlusher()})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	ops := []<-chan error{
		tr.Track(testutil.Records(1)[0]),
		tr.Flush(),
		tr.Clear(),
		tr.Track(testutil.Records(2)[1]),
		tr.Flush(),
	}
	for i, done := range ops {
		wg.Add(1)
		go func(i int, done <-chan error) {
			defer wg.Done()
			assert.NoError(t, <-done)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i, done)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWait_ContextCancelled(t *testing.T) {
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: store.NewMemoryStore(), Flusher: f})
	require.NoError(t, await(t, tr.Track(testutil.Records(1)[0])))

	started := f.Block()
	done := tr.Flush()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, done), context.Canceled)

	f.Unblock()
	assert.NoError(t, await(t, done), "the flush itself still completes")
}

func TestClose_RejectsNewOperations(t *testing.T) {
	tr, err := New(Config{Store: store.NewMemoryStore()})
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "close is idempotent")

	assert.ErrorIs(t, await(t, tr.Track(testutil.Records(1)[0])), ErrClosed)
	assert.ErrorIs(t, await(t, tr.Flush()), ErrClosed)
	assert.ErrorIs(t, await(t, tr.Clear()), ErrClosed)
}

func TestClose_DrainsQueuedOperations(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher()
	tr, err := New(Config{Store: s, Flusher: f})
	require.NoError(t, err)

	events := testutil.Records(2)
	require.NoError(t, await(t, tr.Track(events[0])))

	started := f.Block()
	flushDone := tr.Flush()
	<-started
	trackDone := tr.Track(events[1])

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()

	select {
	case <-closed:
		t.Fatal("close returned while operations were still queued")
	case <-time.After(20 * time.Millisecond):
	}

	f.Unblock()
	require.NoError(t, await(t, closed))
	require.NoError(t, await(t, flushDone))
	require.NoError(t, await(t, trackDone))
	assert.Equal(t, []string{"e2"}, storedNames(t, s))
}

func TestClose_StopsTimer(t *testing.T) {
	f := testutil.NewRecordingFlusher()
	sched := testutil.NewManualScheduler()
	tr, err := New(Config{
		Store:     store.NewMemoryStore(),
		Flusher:   f,
		Policy:    policy.TimeInterval(time.Second),
		Scheduler: sched,
	})
	require.NoError(t, err)

	require.NoError(t, await(t, tr.Track(testutil.Records(1)[0])))
	require.NoError(t, tr.Close())

	require.Equal(t, 1, sched.Armed())
	assert.True(t, sched.Timers()[0].Stopped())
	assert.Equal(t, 0, sched.Fire(), "no tick after close")
	assert.Empty(t, f.Attempts())
}

func TestClose_PersistsBatchTail(t *testing.T) {
	blobs := blob.NewMemory()
	tr, err := New(Config{Store: openBatch(t, blobs, 4)})
	require.NoError(t, err)

	trackAll(t, tr, testutil.Records(6))
	require.NoError(t, tr.Close())

	reopened := openBatch(t, blobs, 4)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5", "e6"}, storedNames(t, reopened))
}

func TestClose_ReportsStoreCloseError(t *testing.T) {
	blobs := testutil.NewFaultyBlobs(blob.NewMemory())
	tr, err := New(Config{Store: openBatch(t, blobs, 4)})
	require.NoError(t, err)

	trackAll(t, tr, testutil.Records(2))
	blobs.FailWrite(blob.Address{Name: "events", Index: blob.TailIndex})

	err = tr.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrInjectedBlob), "got %v", err)
}

func TestBatchStore_ChunkedRoundTripThroughTracker(t *testing.T) {
	s := openBatch(t, blob.NewMemory(), 2)
	f := testutil.NewRecordingFlusher()
	tr := newTestTracker(t, Config{Store: s, Flusher: f})

	trackAll(t, tr, testutil.Records(8))

	stats := s.Stats()
	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, 0, stats.Buffered)
	assert.Len(t, storedNames(t, s), 8)

	require.NoError(t, await(t, tr.Flush()))
	assert.Len(t, f.DeliveredEvents(), 8)
	assert.Equal(t, 0, s.Stats().Batches)
}

func TestTimeInterval_FailedTickKeepsEvents(t *testing.T) {
	s := store.NewMemoryStore()
	f := testutil.NewRecordingFlusher().FailAttempts(1)
	sched := testutil.NewManualScheduler()
	tr := newTestTracker(t, Config{
		Store:     s,
		Flusher:   f,
		Policy:    policy.TimeInterval(time.Minute),
		Scheduler: sched,
	})

	trackAll(t, tr, testutil.Records(2))

	sched.Fire()
	require.NoError(t, await(t, tr.Sync()), "a failed tick is not reported to later operations")
	assert.Len(t, f.Attempts(), 1)
	assert.Equal(t, []string{"e1", "e2"}, storedNames(t, s))

	sched.Fire()
	require.NoError(t, await(t, tr.Sync()))
	assert.Equal(t, []string{"e1", "e2"}, testutil.Names(f.DeliveredEvents()))
	assert.Empty(t, storedNames(t, s))
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"delivery", fmt.Errorf("flush: %w", &flush.DeliveryError{Count: 1, Err: errors.New("down")}), flush.CodeDeliveryFailure},
		{"store", fmt.Errorf("track: %w", &store.Error{Code: store.ErrCodeWriteFailure, Op: "store", Err: errors.New("full")}), "WRITE_FAILURE"},
		{"closed", ErrClosed, CodeClosed},
		{"no flusher", fmt.Errorf("flush: %w", ErrNoFlusher), CodeNoFlusher},
		{"nil event", ErrNilEvent, CodeNilEvent},
		{"other", errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/evtrack/internal/blob"
	"github.com/roach88/evtrack/internal/event"
)

// BatchStore is an EventStore that persists events in fixed-size batches.
// See the package documentation for the batching and commit scheme.
//
// Not safe for concurrent use.
type BatchStore struct {
	blobs       blob.Store
	name        string
	batchSize   int
	decode      event.Decoder
	compression Compression

	index  int           // committed batch count
	buffer []event.Event // events since the last batch write

	// payloads holds the serialized form of each buffered event.
	payloads [][]byte

	// highWater is one past the highest batch index that may still exist on
	// the medium. It only drops back to zero after a fully successful delete.
	highWater int
}

// BatchOption configures a BatchStore.
type BatchOption func(*BatchStore)

// WithDecoder sets the Decoder used to rehydrate persisted events.
//
// Default: event.DecodeRecord
func WithDecoder(d event.Decoder) BatchOption {
	return func(s *BatchStore) {
		s.decode = d
	}
}

// WithCompression sets the compression applied to new batch blobs.
// Existing blobs are read according to their own header.
//
// Default: CompressionNone
func WithCompression(c Compression) BatchOption {
	return func(s *BatchStore) {
		s.compression = c
	}
}

// Stats describes the layout of a BatchStore.
type Stats struct {
	Name      string `json:"name"`
	BatchSize int    `json:"batch_size"`
	Batches   int    `json:"batches"`
	Buffered  int    `json:"buffered"`
}

// OpenBatchStore opens the batch store called name on blobs, restoring the
// committed index and any tail left by a previous Close.
func OpenBatchStore(ctx context.Context, blobs blob.Store, name string, batchSize int, opts ...BatchOption) (*BatchStore, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("open batch store %q: batch size must be positive, got %d", name, batchSize)
	}

	s := &BatchStore{
		blobs:     blobs,
		name:      name,
		batchSize: batchSize,
		decode:    event.DecodeRecord,
	}
	for _, opt := range opts {
		opt(s)
	}

	manifestAddr := s.addr(blob.ManifestIndex)
	if err := manifestAddr.Validate(); err != nil {
		return nil, newError(ErrCodeAddressFailure, "open", &manifestAddr, err)
	}

	data, err := blobs.Read(ctx, manifestAddr)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		// fresh store
	case err != nil:
		return nil, newError(ErrCodeReadFailure, "open", &manifestAddr, err)
	default:
		index, err := decodeManifest(data)
		if err != nil {
			return nil, newError(ErrCodeReadFailure, "open", &manifestAddr, err)
		}
		s.index = index
	}
	s.highWater = s.index

	if err := s.restoreTail(ctx); err != nil {
		return nil, err
	}

	slog.Debug("batch store opened",
		"name", name,
		"batch_size", batchSize,
		"batches", s.index,
		"buffered", len(s.buffer),
	)
	return s, nil
}

func (s *BatchStore) addr(index int) blob.Address {
	return blob.Address{Name: s.name, Index: index}
}

// Store appends e to the buffer and writes a batch once the buffer holds
// batchSize events. If the batch cannot be written, e is not stored.
//
// e is serialized and decoded back before it is buffered. An event the
// decoder cannot read is rejected here with a WriteFailure, so it can never
// reach a batch and fail every later AllEvents.
func (s *BatchStore) Store(ctx context.Context, e event.Event) error {
	data, err := e.Serialize()
	if err != nil {
		return newError(ErrCodeWriteFailure, "store", nil, fmt.Errorf("serialize: %w", err))
	}
	if _, err := s.decode(data); err != nil {
		return newError(ErrCodeWriteFailure, "store", nil, fmt.Errorf("event does not decode: %w", err))
	}

	s.buffer = append(s.buffer, e)
	s.payloads = append(s.payloads, data)
	if len(s.buffer) < s.batchSize {
		return nil
	}

	if err := s.writeBatch(ctx); err != nil {
		last := len(s.buffer) - 1
		s.buffer[last] = nil
		s.buffer = s.buffer[:last]
		s.payloads[last] = nil
		s.payloads = s.payloads[:last]
		return err
	}
	return nil
}

// resetBuffer drops every buffered event.
func (s *BatchStore) resetBuffer() {
	clear(s.buffer)
	s.buffer = s.buffer[:0]
	clear(s.payloads)
	s.payloads = s.payloads[:0]
}

// writeBatch persists the whole buffer at the current index and commits it.
func (s *BatchStore) writeBatch(ctx context.Context) error {
	addr := s.addr(s.index)

	data, err := encodeBatch(s.index, s.payloads, s.compression)
	if err != nil {
		return newError(ErrCodeWriteFailure, "store", &addr, err)
	}

	if err := s.blobs.Create(ctx, addr); err != nil {
		return newError(ErrCodeWriteFailure, "store", &addr, err)
	}
	if err := s.blobs.Write(ctx, addr, data); err != nil {
		return newError(ErrCodeWriteFailure, "store", &addr, err)
	}
	s.highWater = max(s.highWater, s.index+1)

	if err := s.commit(ctx, s.index+1); err != nil {
		return newError(ErrCodeWriteFailure, "store", &addr, err)
	}

	slog.Debug("batch written",
		"name", s.name,
		"index", s.index,
		"events", len(s.buffer),
		"bytes", len(data),
	)

	s.index++
	s.resetBuffer()
	return nil
}

// commit records index as the committed batch count.
func (s *BatchStore) commit(ctx context.Context, index int) error {
	data, err := encodeManifest(index)
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, s.addr(blob.ManifestIndex), data)
}

// AllEvents returns the events of batches 0..index-1 followed by the buffer.
// Any missing or corrupt batch fails the whole read.
func (s *BatchStore) AllEvents(ctx context.Context) ([]event.Event, error) {
	out := make([]event.Event, 0, s.index*s.batchSize+len(s.buffer))

	for i := 0; i < s.index; i++ {
		addr := s.addr(i)
		data, err := s.blobs.Read(ctx, addr)
		if err != nil {
			return nil, newError(ErrCodeReadFailure, "all events", &addr, err)
		}
		payloads, err := decodeBatch(data, i)
		if err != nil {
			return nil, newError(ErrCodeReadFailure, "all events", &addr, err)
		}
		events, err := s.decodeAll(payloads)
		if err != nil {
			return nil, newError(ErrCodeReadFailure, "all events", &addr, err)
		}
		out = append(out, events...)
	}

	return append(out, s.buffer...), nil
}

// DeleteEvents removes every batch and the tail, then resets the index.
//
// The manifest is reset to zero first, so a partial failure can never
// expose stale batches to a later read. Every removal is attempted; local
// state is cleared even when some fail, and all failures are reported in a
// single DeleteFailure.
func (s *BatchStore) DeleteEvents(ctx context.Context) error {
	var errs []error

	if err := s.commit(ctx, 0); err != nil {
		errs = append(errs, fmt.Errorf("reset manifest: %w", err))
	}

	clean := true
	for i := 0; i < s.highWater; i++ {
		if err := s.blobs.Remove(ctx, s.addr(i)); err != nil {
			errs = append(errs, err)
			clean = false
		}
	}

	// Orphans from earlier processes sit contiguously past highWater.
	for i := s.highWater; ; i++ {
		ok, err := s.blobs.Exists(ctx, s.addr(i))
		if err != nil {
			errs = append(errs, err)
			clean = false
			break
		}
		if !ok {
			break
		}
		if err := s.blobs.Remove(ctx, s.addr(i)); err != nil {
			errs = append(errs, err)
			clean = false
			s.highWater = i + 1
			break
		}
	}

	if err := s.blobs.Remove(ctx, s.addr(blob.TailIndex)); err != nil {
		errs = append(errs, err)
	}

	s.index = 0
	s.resetBuffer()
	if clean {
		s.highWater = 0
	}

	if len(errs) > 0 {
		slog.Warn("batch store delete incomplete",
			"name", s.name,
			"failures", len(errs),
			"error", errs[0],
		)
		return newError(ErrCodeDeleteFailure, "delete events", nil, errors.Join(errs...))
	}
	return nil
}

// Close persists the buffer as the tail blob so the next OpenBatchStore
// restores it. An empty buffer removes any previous tail.
func (s *BatchStore) Close(ctx context.Context) error {
	addr := s.addr(blob.TailIndex)

	if len(s.buffer) == 0 {
		if err := s.blobs.Remove(ctx, addr); err != nil {
			return newError(ErrCodeWriteFailure, "close", &addr, err)
		}
		return nil
	}

	data, err := encodeBatch(blob.TailIndex, s.payloads, s.compression)
	if err != nil {
		return newError(ErrCodeWriteFailure, "close", &addr, err)
	}
	if err := s.blobs.Write(ctx, addr, data); err != nil {
		return newError(ErrCodeWriteFailure, "close", &addr, err)
	}

	slog.Debug("batch store tail saved", "name", s.name, "events", len(s.buffer))
	return nil
}

// restoreTail loads a tail left by Close into the buffer and removes it.
func (s *BatchStore) restoreTail(ctx context.Context) error {
	addr := s.addr(blob.TailIndex)

	data, err := s.blobs.Read(ctx, addr)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	if err != nil {
		return newError(ErrCodeReadFailure, "open", &addr, err)
	}

	payloads, err := decodeBatch(data, blob.TailIndex)
	if err != nil {
		return newError(ErrCodeReadFailure, "open", &addr, err)
	}
	events, err := s.decodeAll(payloads)
	if err != nil {
		return newError(ErrCodeReadFailure, "open", &addr, err)
	}

	// A tail written by a larger batch size may overflow; it is flushed as
	// one oversized batch on the next Store.
	s.buffer = events
	s.payloads = payloads

	if err := s.blobs.Remove(ctx, addr); err != nil {
		return newError(ErrCodeDeleteFailure, "open", &addr, err)
	}
	return nil
}

// Stats reports the current layout.
func (s *BatchStore) Stats() Stats {
	return Stats{
		Name:      s.name,
		BatchSize: s.batchSize,
		Batches:   s.index,
		Buffered:  len(s.buffer),
	}
}

func (s *BatchStore) decodeAll(payloads [][]byte) ([]event.Event, error) {
	out := make([]event.Event, len(payloads))
	for i, p := range payloads {
		e, err := s.decode(p)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/evtrack/internal/blob"
	"github.com/roach88/evtrack/internal/config"
	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/store"
	"github.com/roach88/evtrack/internal/tracker"
)

// loadConfig loads the configuration and installs the default logger.
// --verbose forces debug logging regardless of log_level.
func loadConfig(opts *RootOptions, logW io.Writer) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(logW, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	return cfg, nil
}

// openedStore is an event store plus whatever owns its medium.
type openedStore struct {
	store.EventStore
	blobs io.Closer // nil unless the medium needs closing
}

// Stats reports batch layout, or nil for the memory backend.
func (o *openedStore) Stats() *store.Stats {
	if bs, ok := o.EventStore.(*store.BatchStore); ok {
		stats := bs.Stats()
		return &stats
	}
	return nil
}

// close persists the batch tail and releases the medium.
func (o *openedStore) close(ctx context.Context) error {
	var errs []error
	if c, ok := o.EventStore.(store.Closer); ok {
		errs = append(errs, c.Close(ctx))
	}
	if o.blobs != nil {
		errs = append(errs, o.blobs.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg config.Config) (*openedStore, error) {
	var (
		blobs  blob.Store
		closer io.Closer
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		slog.Warn("memory backend: events do not outlive this process")
		return &openedStore{EventStore: store.NewMemoryStore()}, nil

	case config.BackendFile:
		dir, err := blob.OpenDir(cfg.Store.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open store directory", err)
		}
		blobs = dir

	case config.BackendSQLite:
		db, err := blob.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open store database", err)
		}
		blobs, closer = db, db

	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", cfg.Store.Backend))
	}

	bs, err := store.OpenBatchStore(ctx, blobs, cfg.Store.Name, cfg.Store.BatchSize,
		store.WithCompression(cfg.Compression()))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, WrapExitError(ExitCommandError, "failed to open event store", err)
	}

	slog.Debug("event store ready",
		"backend", cfg.Store.Backend,
		"path", cfg.Store.Path,
		"name", cfg.Store.Name,
	)
	return &openedStore{EventStore: bs, blobs: closer}, nil
}

// session is a tracker over the configured store.
type session struct {
	cfg     config.Config
	store   *openedStore
	tracker *tracker.Tracker
}

// openSession loads config, opens the store and starts a tracker that
// delivers through f.
func openSession(ctx context.Context, opts *RootOptions, f flush.Flusher, logW io.Writer) (*session, error) {
	cfg, err := loadConfig(opts, logW)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	t, err := tracker.New(tracker.Config{
		Store:   st.EventStore,
		Flusher: f,
		Policy:  cfg.FlushPolicy(),
	})
	if err != nil {
		_ = st.close(ctx)
		return nil, WrapExitError(ExitCommandError, "failed to start tracker", err)
	}

	return &session{cfg: cfg, store: st, tracker: t}, nil
}

// Close drains the tracker, which persists the batch tail, then releases
// the medium.
func (s *session) Close() error {
	err := s.tracker.Close()
	if s.store.blobs != nil {
		err = errors.Join(err, s.store.blobs.Close())
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to close event store", err)
	}
	return nil
}

// countingFlusher forwards to a LogFlusher and counts delivered events.
type countingFlusher struct {
	out       *flush.LogFlusher
	delivered int
}

func (c *countingFlusher) Deliver(ctx context.Context, events []event.Event) error {
	if err := c.out.Deliver(ctx, events); err != nil {
		return err
	}
	c.delivered += len(events)
	return nil
}

// opError converts a tracker outcome into an ExitError carrying its code.
func opError(message string, err error) error {
	code := tracker.Code(err)
	return WrapExitError(ExitFailure, fmt.Sprintf("%s [%s]", message, code), err)
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/tracker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	FlushOnExit bool

	// IDs allows overriding the event ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs event.IDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Tracked int `json:"tracked"`
	Failed  int `json:"failed"`
	Flushed int `json:"flushed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track events read from standard input",
		Long: `Start a long-lived tracker that records one event per input line.

Each line is "name [key=value...]". Blank lines and lines starting with #
are skipped. The configured flush policy runs for the whole session, so
interval:D flushes periodically. The tracker stops at end of input or on
SIGINT/SIGTERM; unflushed events are kept in the store.

Example:
  tail -f app.log | evtrack run --config evtrack.yaml
  printf 'signup plan=pro\npurchase sku=A-100\n' | evtrack run --flush-on-exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FlushOnExit, "flush-on-exit", false, "flush stored events before stopping")

	return cmd
}

func runTracker(opts *RunOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	counter := &countingFlusher{out: flush.NewLogFlusher(out.DiagWriter())}

	ids := opts.IDs
	if ids == nil {
		ids = event.UUIDv7Generator{}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	s, err := openSession(ctx, opts.RootOptions, counter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.Info("tracker started", "policy", s.tracker.Policy(), "backend", s.cfg.Store.Backend)

	// The reader stays blocked in Scan after a signal; it cannot be
	// interrupted and ends with the process.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("reading input", "error", err)
		}
	}()

	var result RunResult
	var pending []<-chan error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			rec, skip, err := parseLine(ids, line)
			if err != nil {
				slog.Warn("skipping line", "line", line, "error", err)
				result.Failed++
				continue
			}
			if skip {
				continue
			}
			pending = append(pending, s.tracker.Track(rec))
		}
	}

	// Completions are buffered, so collecting them after the loop never
	// blocks the worker. Close below waits for anything still queued.
	if opts.FlushOnExit {
		pending = append(pending, s.tracker.Flush())
	}
	closeErr := s.Close()

	for i, done := range pending {
		err := <-done
		isFlush := opts.FlushOnExit && i == len(pending)-1
		switch {
		case err != nil && isFlush:
			slog.Error("final flush failed", "error", err, "code", tracker.Code(err))
		case err != nil:
			slog.Warn("track failed", "error", err, "code", tracker.Code(err))
			result.Failed++
		case !isFlush:
			result.Tracked++
		}
	}
	result.Flushed = counter.delivered

	if closeErr != nil {
		return closeErr
	}

	slog.Info("tracker stopped", "tracked", result.Tracked, "failed", result.Failed)
	return out.Success(
		fmt.Sprintf("tracked %d events (%d failed), flushed %d", result.Tracked, result.Failed, result.Flushed),
		result,
	)
}

// parseLine reads "name [key=value...]". skip is true for blank and
// comment lines.
func parseLine(ids event.IDGenerator, line string) (rec event.Record, skip bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return event.Record{}, true, nil
	}

	fields := strings.Fields(line)
	props, err := parseProps(fields[1:])
	if err != nil {
		return event.Record{}, false, err
	}
	return event.NewRecord(ids, fields[0], props), false, nil
}

// parsePositiveDuration parses a time.ParseDuration string that must be > 0.
func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests calling RunE directly).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

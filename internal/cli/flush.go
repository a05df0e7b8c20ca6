package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/tracker"
)

// FlushOptions holds flags for the flush command.
type FlushOptions struct {
	*RootOptions
	Timeout string
}

// FlushResult is the JSON payload of the flush command.
type FlushResult struct {
	Flushed int `json:"flushed"`
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver every stored event",
		Long: `Deliver every stored event, printing each one, then delete them.

If delivery fails the events stay in the store and the command exits 1.

Examples:
  evtrack flush
  evtrack flush --timeout 5s --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Timeout, "timeout", "", "bound the delivery (e.g. 5s); empty means no bound")

	return cmd
}

func runFlush(opts *FlushOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	counter := &countingFlusher{out: flush.NewLogFlusher(out.DiagWriter())}

	var f flush.Flusher = counter
	if opts.Timeout != "" {
		d, err := parsePositiveDuration(opts.Timeout)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --timeout", err)
		}
		f = flush.WithTimeout(counter, d)
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts.RootOptions, f, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := tracker.Wait(ctx, s.tracker.Flush()); err != nil {
		_ = s.Close()
		return opError("failed to flush events", err)
	}
	if err := s.Close(); err != nil {
		return err
	}

	return out.Success(fmt.Sprintf("flushed %d events", counter.delivered), FlushResult{Flushed: counter.delivered})
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored event without delivering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(rootOpts, cmd)
		},
	}
}

func runClear(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, nil, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := tracker.Wait(ctx, s.tracker.Clear()); err != nil {
		_ = s.Close()
		return opError("failed to clear events", err)
	}
	if err := s.Close(); err != nil {
		return err
	}

	return out.Success("cleared", map[string]bool{"cleared": true})
}

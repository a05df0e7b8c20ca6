package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evtrack/internal/store"
)

// InspectResult is the JSON payload of the inspect command.
type InspectResult struct {
	Backend string       `json:"backend"`
	Path    string       `json:"path,omitempty"`
	Count   int          `json:"count"`
	Layout  *store.Stats `json:"layout,omitempty"`
	Events  []string     `json:"events"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the stored events and batch layout",
		Long: `Show the events waiting in the configured store, in delivery order,
and how they are split into batches.

Exit codes:
  0 - Store read
  2 - Store could not be opened or a batch is missing or corrupt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	cfg, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	events, readErr := st.AllEvents(ctx)
	layout := st.Stats()
	if err := st.close(ctx); err != nil && readErr == nil {
		return WrapExitError(ExitFailure, "failed to close event store", err)
	}
	if readErr != nil {
		if opts.Format == "json" {
			_ = out.Error(string(store.Code(readErr)), readErr.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to read events", readErr)
	}

	result := InspectResult{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Count:   len(events),
		Layout:  layout,
		Events:  make([]string, len(events)),
	}
	for i, e := range events {
		result.Events[i] = e.Describe()
	}

	return out.Success(renderInspect(result), result)
}

func renderInspect(r InspectResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend: %s\n", r.Backend)
	if r.Layout != nil {
		fmt.Fprintf(&b, "batches: %d of %d events, %d buffered\n",
			r.Layout.Batches, r.Layout.BatchSize, r.Layout.Buffered)
	}
	fmt.Fprintf(&b, "events: %d", r.Count)
	for _, e := range r.Events {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

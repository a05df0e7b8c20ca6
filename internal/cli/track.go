package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/tracker"
)

// TrackResult is the JSON payload of the track command.
type TrackResult struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
	Flushed    int               `json:"flushed"`
}

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <name> [key=value...]",
		Short: "Record one event",
		Long: `Record one event in the configured store.

The flush policy applies: with limit:N, the event that brings the store to
N events is delivered together with the ones before it. Delivered events are
printed one per line.

Examples:
  evtrack track app_open
  evtrack track signup plan=pro country=NZ
  evtrack --config evtrack.yaml track purchase sku=A-100`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(rootOpts, args[0], args[1:], cmd)
		},
	}
	return cmd
}

func runTrack(opts *RootOptions, name string, pairs []string, cmd *cobra.Command) error {
	props, err := parseProps(pairs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid property", err)
	}

	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	counter := &countingFlusher{out: flush.NewLogFlusher(out.DiagWriter())}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, opts, counter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rec := event.NewRecord(event.UUIDv7Generator{}, name, props)
	if err := tracker.Wait(ctx, s.tracker.Track(rec)); err != nil {
		_ = s.Close()
		return opError("failed to track event", err)
	}
	if err := s.Close(); err != nil {
		return err
	}

	return out.Success(fmt.Sprintf("tracked %s", rec.Describe()), TrackResult{
		ID:         rec.ID,
		Name:       rec.Name,
		Properties: rec.Properties,
		Flushed:    counter.delivered,
	})
}

// parseProps reads key=value pairs. Keys must be non-empty; values may be.
func parseProps(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q: want key=value", p)
		}
		props[k] = v
	}
	return props, nil
}

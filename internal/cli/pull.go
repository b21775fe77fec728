package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/event"
)

// PullOptions holds flags for the pull command.
type PullOptions struct {
	LocalOptions
	Since int64
	Limit int
}

// PullEntry is one event in the pull timeline. Payloads are ciphertext and
// are reported by size only.
type PullEntry struct {
	Global      int64     `json:"global_sequence"`
	Commit      int64     `json:"commit_sequence"`
	ID          string    `json:"id"`
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Version     int64     `json:"version"`
	OccurredAt  time.Time `json:"occurred_at"`
	PayloadSize int       `json:"payload_size"`
	ScopeID     string    `json:"scope_id,omitempty"`
}

// PullOutput is the pull command's result.
type PullOutput struct {
	Owner  string      `json:"owner"`
	Store  string      `json:"store"`
	Since  int64       `json:"since"`
	Head   int64       `json:"head"`
	Events []PullEntry `json:"events"`
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PullOptions{LocalOptions: LocalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Show a store's events after a cursor",
		Long: `Show events with global sequence greater than --since, in stream order.

Examples:
  synclogd pull --db ./synclog.db --owner u1 --store s1
  synclogd pull --db ./synclog.db --owner u1 --store s1 --since 40 --limit 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(opts, cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "return events after this global sequence")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum events to return")

	return cmd
}

func runPull(opts *PullOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose, cmd.ErrOrStderr(), slog.LevelWarn)
	formatter := opts.formatter(cmd)

	eng, st, err := opts.openLocal()
	if err != nil {
		return err
	}
	defer closeStore(st)

	res, err := eng.Pull(context.Background(), opts.Owner, opts.Store, opts.Since, opts.Limit)
	if err != nil {
		_ = formatter.Error("E_PULL", err.Error(), nil)
		return engineExit("pull", err)
	}

	out := PullOutput{
		Owner:  opts.Owner,
		Store:  opts.Store,
		Since:  opts.Since,
		Head:   res.Head,
		Events: make([]PullEntry, 0, len(res.Events)),
	}
	for _, ev := range res.Events {
		out.Events = append(out.Events, pullEntry(ev))
	}
	formatter.VerboseLog("pulled %s", plural(len(out.Events), "event"))

	return formatter.Success(out, func(w io.Writer) { writePullText(w, out) })
}

func pullEntry(ev event.Record) PullEntry {
	e := PullEntry{
		Commit:      ev.CommitSequence,
		ID:          ev.ID,
		AggregateID: ev.AggregateID,
		EventType:   ev.EventType,
		Version:     ev.Version,
		OccurredAt:  ev.OccurredAt,
		PayloadSize: len(ev.Payload),
	}
	if ev.GlobalSequence != nil {
		e.Global = *ev.GlobalSequence
	}
	if !ev.Sharing.IsEmpty() {
		e.ScopeID = ev.Sharing.ScopeID
	}
	return e
}

func writePullText(w io.Writer, out PullOutput) {
	fmt.Fprintf(w, "%s/%s since %d, head %d\n", out.Owner, out.Store, out.Since, out.Head)
	if len(out.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for _, e := range out.Events {
		scope := ""
		if e.ScopeID != "" {
			scope = " scope=" + e.ScopeID
		}
		fmt.Fprintf(w, "  [%d] %s %s %s v%d (%d bytes)%s\n",
			e.Global, e.ID, e.AggregateID, e.EventType, e.Version, e.PayloadSize, scope)
	}
}

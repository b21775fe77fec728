package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	LocalOptions
	ExpectedHead int64
}

// PushOutput is the push command's result.
type PushOutput struct {
	OK       bool               `json:"ok"`
	Head     int64              `json:"head"`
	Assigned []event.Assignment `json:"assigned"`
	Reason   string             `json:"reason,omitempty"`
	Missing  []string           `json:"missing,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{LocalOptions: LocalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "push <events.json>",
		Short: "Append events to a store's log",
		Long: `Append a JSON array of events to a store, arbitrated by --expected-head.

Use - to read events from stdin. Any sequence fields in the input are
ignored; the server assigns them. A conflict exits 1 and lists what the
caller is missing.

Example:
  synclogd push --db ./synclog.db --owner u1 --store s1 --expected-head 0 events.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	opts.bindFlags(cmd)
	cmd.Flags().Int64Var(&opts.ExpectedHead, "expected-head", 0, "head sequence the batch was built on")

	return cmd
}

func runPush(opts *PushOptions, path string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose, cmd.ErrOrStderr(), slog.LevelWarn)
	formatter := opts.formatter(cmd)

	events, err := readEvents(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	eng, st, err := opts.openLocal()
	if err != nil {
		return err
	}
	defer closeStore(st)

	res, err := eng.Push(context.Background(), opts.Owner, opts.Store, opts.ExpectedHead, events)
	if err != nil {
		_ = formatter.Error("E_PUSH", err.Error(), nil)
		return engineExit("push", err)
	}

	out := PushOutput{OK: res.OK, Head: res.Head, Assigned: res.Assigned}
	if out.Assigned == nil {
		out.Assigned = []event.Assignment{}
	}
	if c := res.Conflict; c != nil {
		out.Reason = string(c.Reason)
		out.Detail = c.Detail
		for _, m := range c.Missing {
			out.Missing = append(out.Missing, m.ID)
		}
	}

	if err := formatter.Success(out, func(w io.Writer) { writePushText(w, out) }); err != nil {
		return err
	}
	if !res.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("push conflict: %s", out.Reason))
	}
	return nil
}

func writePushText(w io.Writer, out PushOutput) {
	if out.OK {
		fmt.Fprintf(w, "✓ committed %s, head %d\n", plural(len(out.Assigned), "event"), out.Head)
		for _, a := range out.Assigned {
			fmt.Fprintf(w, "  %-6d %s\n", a.GlobalSequence, a.EventID)
		}
		return
	}
	fmt.Fprintf(w, "✗ conflict: %s (head %d)\n", out.Reason, out.Head)
	if out.Detail != "" {
		fmt.Fprintf(w, "  %s\n", out.Detail)
	}
	if out.Reason == string(engine.ReasonServerAhead) {
		fmt.Fprintf(w, "  missing: %v\n", out.Missing)
	}
}

// readEvents decodes a JSON event array from path, or from stdin for "-".
// Server-assigned fields are cleared and blank timestamps are set to now.
func readEvents(path string, stdin io.Reader) ([]event.Record, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var events []event.Record
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	now := time.Now().UTC()
	for i := range events {
		events[i].CommitSequence = 0
		events[i].GlobalSequence = nil
		if events[i].OccurredAt.IsZero() {
			events[i].OccurredAt = now
		}
	}
	return events, nil
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/store"
)

// verifyPageSize is the LoadSince page used while walking a log.
const verifyPageSize = 500

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	Owner    string
	Store    string
}

// VerifyResult reports a log integrity check.
type VerifyResult struct {
	Owner    string   `json:"owner"`
	Store    string   `json:"store"`
	Head     int64    `json:"head"`
	Events   int64    `json:"events"`
	Commits  int64    `json:"commits"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a store's log for sequencing gaps",
		Long: `Walk a store's log and check its sequencing invariants:

  - the store is bound to --owner
  - global sequences run 1..head with no gaps or repeats
  - commit sequences never decrease in global order

Read-only: unlike pull, verify never claims an unbound store.

Exit codes:
  0 - Log is consistent
  1 - One or more problems found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner identity (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&opts.Store, "store", "", "store id (required)")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	result, err := verifyLog(context.Background(), st, opts.Owner, opts.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}
	formatter.VerboseLog("walked %s in %s", plural(int(result.Events), "event"), plural(int(result.Commits), "commit"))

	if err := formatter.Success(result, func(w io.Writer) { writeVerifyText(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s found", plural(len(result.Problems), "problem")))
	}
	return nil
}

func verifyLog(ctx context.Context, st *store.Store, ownerID, storeID string) (VerifyResult, error) {
	result := VerifyResult{Owner: ownerID, Store: storeID}
	problem := func(format string, args ...any) {
		result.Problems = append(result.Problems, fmt.Sprintf(format, args...))
	}

	owner, found, err := st.LookupStoreOwner(ctx, storeID)
	if err != nil {
		return result, err
	}
	switch {
	case !found:
		problem("store %s is not bound to any owner", storeID)
	case owner != ownerID:
		problem("store %s is bound to %s", storeID, owner)
	}

	head, err := st.GetHeadSequence(ctx, ownerID, storeID)
	if err != nil {
		return result, err
	}
	result.Head = head

	var expected, lastCommit int64 = 1, 0
	cursor := int64(0)
	for {
		page, err := st.LoadSince(ctx, ownerID, storeID, cursor, verifyPageSize)
		if err != nil {
			return result, err
		}
		for _, ev := range page {
			if ev.GlobalSequence == nil {
				problem("event %s has no global sequence", ev.ID)
				continue
			}
			g := *ev.GlobalSequence
			if g != expected {
				problem("event %s at global %d, expected %d", ev.ID, g, expected)
			}
			if ev.CommitSequence < lastCommit {
				problem("event %s commit %d after commit %d", ev.ID, ev.CommitSequence, lastCommit)
			}
			if ev.CommitSequence != lastCommit {
				result.Commits++
			}
			lastCommit = ev.CommitSequence
			expected = g + 1
			cursor = g
			result.Events++
		}
		if len(page) < verifyPageSize {
			break
		}
	}

	if last := expected - 1; last != head {
		problem("head is %d but last event is at %d", head, last)
	}
	result.Valid = len(result.Problems) == 0
	return result, nil
}

func writeVerifyText(w io.Writer, r VerifyResult) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %s/%s: %s in %s, head %d\n", r.Owner, r.Store,
			plural(int(r.Events), "event"), plural(int(r.Commits), "commit"), r.Head)
		return
	}
	fmt.Fprintf(w, "✗ %s/%s: %s\n", r.Owner, r.Store, plural(len(r.Problems), "problem"))
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

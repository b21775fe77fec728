package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/ownership"
	"github.com/roach88/synclog/internal/sharing"
	"github.com/roach88/synclog/internal/store"
)

// LocalOptions are shared by commands that open the database directly.
type LocalOptions struct {
	*RootOptions
	Database     string
	Owner        string
	Store        string
	Profile      string
	Sharing      string
	LegacyPrefix string
}

func (o *LocalOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&o.Owner, "owner", "", "owner identity (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&o.Store, "store", "", "store id (required)")
	_ = cmd.MarkFlagRequired("store")
	cmd.Flags().StringVar(&o.Profile, "profile", string(engine.ProfileDevelopment), "deployment profile (development|staging|production)")
	cmd.Flags().StringVar(&o.Sharing, "sharing", string(sharing.ModeEnforced), "sharing dependency checks (enforced|disabled)")
	cmd.Flags().StringVar(&o.LegacyPrefix, "legacy-prefix", "legacy-", "store id prefix eligible for migration")
}

// openLocal opens the database and builds an engine over it. The caller
// closes the store.
func (o *LocalOptions) openLocal() (*engine.Engine, *store.Store, error) {
	profile, err := engine.ParseProfile(o.Profile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid --profile", err)
	}

	st, err := store.Open(o.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	checker, err := sharing.NewChecker(sharing.Mode(o.Sharing), st, st)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "invalid --sharing", err)
	}
	guard := ownership.NewGuard(st, ownership.WithLegacyPrefix(o.LegacyPrefix))

	eng, err := engine.New(st, guard, engine.SelfOwnedPolicy{}, checker, profile)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return eng, st, nil
}

// engineExit maps engine errors onto exit codes.
func engineExit(op string, err error) error {
	switch {
	case engine.IsAccessDenied(err):
		return WrapExitError(ExitDenied, op+" denied", err)
	case engine.IsRequestError(err):
		return WrapExitError(ExitCommandError, "invalid "+op+" request", err)
	default:
		return WrapExitError(ExitFailure, op+" failed", err)
	}
}

// setupLogging installs the default slog handler at level, or debug when
// verbose. Logs go to stderr so JSON output on stdout stays parseable.
func setupLogging(verbose bool, w io.Writer, level slog.Level) {
	if verbose {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

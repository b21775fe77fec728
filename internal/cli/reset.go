package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/engine"
)

// ResetOutput is the reset command's result.
type ResetOutput struct {
	Owner   string `json:"owner"`
	Store   string `json:"store"`
	Profile string `json:"profile"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LocalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every event in a store",
		Long: `Delete a store's events and head. Refused under --profile production.

The store stays bound to its owner.

Example:
  synclogd reset --db ./dev.db --owner u1 --store s1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	opts.bindFlags(cmd)
	return cmd
}

func runReset(opts *LocalOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose, cmd.ErrOrStderr(), slog.LevelWarn)
	formatter := opts.formatter(cmd)

	eng, st, err := opts.openLocal()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := eng.Reset(context.Background(), opts.Owner, opts.Store); err != nil {
		code := "E_RESET"
		if errors.Is(err, engine.ErrResetForbidden) {
			code = string(engine.CodeResetForbidden)
		}
		_ = formatter.Error(code, err.Error(), nil)
		return engineExit("reset", err)
	}

	out := ResetOutput{Owner: opts.Owner, Store: opts.Store, Profile: string(eng.Profile())}
	return formatter.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ reset %s/%s (%s)\n", out.Owner, out.Store, out.Profile)
	})
}

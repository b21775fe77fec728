package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	WithEnv bool

	// Lookup overrides os.LookupEnv for tests.
	Lookup config.Lookup
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Path   string         `json:"path"`
	Config *config.Config `json:"config,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a configuration file",
		Long: `Unify a CUE configuration file with the synclogd schema and check it.

Prints the effective configuration with signing keys redacted. With
--env, SYNCLOG_* environment overrides are applied first, exactly as
serve would.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.WithEnv, "env", false, "apply SYNCLOG_* environment overrides")
	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var lookup config.Lookup
	if opts.WithEnv {
		lookup = opts.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
	}

	cfg, err := config.Load(path, lookup)
	if err != nil {
		code := "E_CONFIG_INVALID"
		var loadErr *config.LoadError
		if errors.As(err, &loadErr) && errors.Is(loadErr.Err, os.ErrNotExist) {
			code = "E_CONFIG_NOT_FOUND"
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	redacted := *cfg
	redacted.Auth.SigningKeys = make([]string, len(cfg.Auth.SigningKeys))
	for i := range redacted.Auth.SigningKeys {
		redacted.Auth.SigningKeys[i] = "<redacted>"
	}

	result := ValidationResult{Valid: true, Path: path, Config: &redacted}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid\n", path)
		fmt.Fprintf(w, "  %s\n", cfg.String())
	})
}

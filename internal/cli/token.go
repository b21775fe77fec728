package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/synclog/internal/api"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Key string
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Mint an identity token for a signing key",
		Long: `Print an identity token that serve accepts when --key is one of its
auth.signing_keys. Send it as the X-Synclog-Identity header or the
synclog_identity cookie.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return NewExitError(ExitCommandError, "identity must not be empty")
			}
			token := api.SignIdentity([]byte(opts.Key), args[0])
			return opts.formatter(cmd).Success(map[string]string{"identity": args[0], "token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "signing key (required)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

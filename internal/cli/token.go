package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-prompt-manager/internal/auth"
	"github.com/tbourn/go-prompt-manager/internal/config"
)

// NewTokenCommand creates the token command, which mints a session token for
// local development and scripting.
func NewTokenCommand(_ *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a session token for subject",
		Long: `Mint a signed session token for subject using SESSION_SECRET.

The token is printed on stdout; use it as "Authorization: Bearer <token>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := strings.TrimSpace(args[0])
			if subject == "" {
				return fmt.Errorf("subject must not be empty")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl > 0 {
				cfg.Session.TTL = ttl
			}
			tok, exp, err := auth.NewSessions(cfg.Session, nil).Issue(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default SESSION_TTL)")
	return cmd
}

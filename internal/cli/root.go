// Package cli implements the promptd command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-prompt-manager/internal/config"
	"github.com/tbourn/go-prompt-manager/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for the promptd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "promptd",
		Short:         "promptd - ownership-scoped prompt manager",
		Long:          "An HTTP service that stores prompts and lets each caller see and change only their own.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(sysutil.FirstNonEmpty(opts.EnvFile, os.Getenv("PROMPTD_ENV_FILE")))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file loaded before reading the environment (default .env)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// Package cli defines the opportunity command line.
package cli

import (
	"github.com/spf13/cobra"

	"opportunity/internal/app"
)

// NewRootCmd builds the root command. Without a subcommand it runs the bot.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "opportunity",
		Short:         "Million on Mars Discord bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	cmd.AddCommand(NewRunCmd(), NewMigrateCmd(), NewJobsCmd())
	return cmd
}

// NewRunCmd starts the bot.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start the scheduler",
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}
}

func runBot(*cobra.Command, []string) error {
	a, err := app.New()
	if err != nil {
		return err
	}
	return a.Run()
}

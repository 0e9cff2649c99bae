package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opportunity/internal/adapter/jobstore"
	"opportunity/internal/app"
	"opportunity/internal/config"
)

// NewMigrateCmd applies the durable job store schema.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply job store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			version, err := jobstore.Migrate(cmd.Context(), app.StoreOptions(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.JobStore.Driver, version)
			return nil
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ow2stats/herostats/internal/store/postgres"
)

// newMigrateCmd creates the 'migrate' subcommand applying schema migrations.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := postgres.Migrate(cfg.DB.DSN); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			logger.Info("database schema up to date")
			return nil
		},
	}
}

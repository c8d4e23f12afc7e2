package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pgstore "github.com/tinoosan/bookkeeping/internal/storage/postgres"
)

func newMigrateCommand(envFile *string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the external store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			if !cfg.UsesExternalStore() {
				return errors.New("DATABASE_URL is required")
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			pg, err := pgstore.Open(cmd.Context(), cfg.DatabaseURL, cfg.BookCurrency)
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			defer pg.Close()

			applied, err := pg.Migrate(cmd.Context(), dir)
			for _, name := range applied {
				logger.Info("migration applied", "file", name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default MIGRATIONS_DIR)")
	return cmd
}

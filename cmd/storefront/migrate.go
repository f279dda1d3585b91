package main

import (
	"context"
	"log/slog"

	"github.com/fjod/storefront/internal/repository"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, shutdown, err := bootstrap(cmd.Context(), "migrate")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			repo, err := repository.NewRepository(&cfg.Database)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.RunMigrations(&cfg.Database); err != nil {
				return err
			}
			slog.Info("database migrations completed")
			return nil
		},
	}
}

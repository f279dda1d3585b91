package main

import (
	"context"
	"log/slog"

	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/spf13/cobra"
)

func relayCmd() *cobra.Command {
	var opts publisher.Options

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish order events from the outbox to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, shutdown, err := bootstrap(ctx, "relay")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			repo, err := repository.NewRepository(&cfg.Database)
			if err != nil {
				return err
			}
			defer repo.Close()

			opts.Topic = cfg.KafkaTopic
			poller, writer := publisher.NewOutboxPoller(repo, opts, cfg.KafkaBrokers...)
			defer func() {
				if err := writer.Close(); err != nil {
					slog.Error("failed to close kafka writer", "error", err)
				}
			}()

			slog.Info("outbox relay started", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
			poller.Run(ctx)
			slog.Info("outbox relay stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 100, "events published per poll")
	cmd.Flags().DurationVar(&opts.EventTick, "poll-interval", 0, "outbox poll interval (default 1s)")
	cmd.Flags().DurationVar(&opts.PurgeTick, "purge-interval", 0, "published event purge interval (default 1h)")
	cmd.Flags().DurationVar(&opts.Retention, "retention", 0, "how long published events are kept (default 168h)")
	return cmd
}

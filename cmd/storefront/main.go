package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "storefront"

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront checkout and payment reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(deliveriesCmd())
	rootCmd.AddCommand(productCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and installs the process-wide logger and
// tracer. The returned shutdown flushes pending spans.
func bootstrap(ctx context.Context, role string) (*config.Config, telemetry.ShutdownFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.InitLogger(os.Stdout, cfg.LogLevel).With("service", serviceName, "role", role)
	slog.SetDefault(logger)

	tracerCfg := telemetry.TracerConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.OTelSample,
	}
	if cfg.OTelEnabled {
		tracerCfg.Endpoint = cfg.OTelEndpoint
	}
	shutdown, err := telemetry.SetupTracer(ctx, tracerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("setup tracer: %w", err)
	}
	return cfg, shutdown, nil
}

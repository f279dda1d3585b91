package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/journal"
	"github.com/fjod/storefront/internal/lock"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout and payment webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, shutdownTracer, err := bootstrap(ctx, "serve")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	repo, err := repository.NewRepository(&cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	if migrate {
		if err := repo.RunMigrations(&cfg.Database); err != nil {
			return err
		}
		slog.Info("database migrations completed")
	}

	// Locker and journal stay nil interfaces when their backends are not configured.
	var locker service.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
	} else {
		slog.Warn("REDIS_ADDR not set, payment lock disabled")
	}

	var deliveries service.DeliveryJournal
	if cfg.MongoURI != "" {
		db, err := journal.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer journal.Disconnect(db, 5*time.Second)
		j := journal.NewMongoJournal(db)
		if err := j.CreateIndexes(ctx); err != nil {
			return err
		}
		deliveries = j
	} else {
		slog.Warn("MONGO_URI not set, delivery journal disabled")
	}

	stripeClient := payment.NewStripeClient(payment.Config{
		SecretKey: cfg.StripeSecretKey,
		APIURL:    cfg.StripeAPIURL,
	})
	verifier := payment.NewWebhookVerifier(cfg.StripeWebhookSecret)

	validator := service.NewCartValidator(repo, cfg.CatalogTimeout)
	initiator := service.NewCheckoutInitiator(validator, repo, stripeClient, service.CheckoutSettings{
		BaseURL:          cfg.BaseURL,
		Currency:         cfg.Currency,
		AllowedCountries: cfg.ShippingCountries,
	}, cfg.StoreTimeout, cfg.ProviderTimeout)
	confirmations := service.NewConfirmationHandler(verifier, repo, stripeClient, locker, deliveries, service.ConfirmationOptions{
		StoreTimeout:    cfg.StoreTimeout,
		ProviderTimeout: cfg.ProviderTimeout,
		LockTTL:         cfg.LockTTL,
	})

	router := h.NewRouter(
		h.RouterConfig{
			ServiceName:        serviceName,
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		h.NewCheckoutHandler(initiator, cfg.RequestTimeout),
		h.NewWebhookHandler(confirmations, cfg.RequestTimeout),
		h.NewOrdersHandler(repo, cfg.RequestTimeout),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("storefront listening", "port", cfg.HTTPPort, "base_url", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server exited")
	return nil
}

// Command server runs the billing bridge: the HTTP surface the browser
// extension talks to, plus the Stripe webhook endpoint that keeps the stored
// subscription records in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/billingbridge/pkg/api"
	"github.com/mihaimyh/billingbridge/pkg/billing/dedup"
	prommetrics "github.com/mihaimyh/billingbridge/pkg/billing/metrics/prometheus"
	stripeprovider "github.com/mihaimyh/billingbridge/pkg/billing/stripe"
	"github.com/mihaimyh/billingbridge/pkg/config"
	"github.com/mihaimyh/billingbridge/pkg/identity"
	"github.com/mihaimyh/billingbridge/pkg/subscription"
	zerologadapter "github.com/mihaimyh/billingbridge/pkg/subscription/logger/zerolog"
	fsstore "github.com/mihaimyh/billingbridge/storage/firestore"
	"github.com/mihaimyh/billingbridge/storage/memory"
	pgstore "github.com/mihaimyh/billingbridge/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rootLogger := newLogger(cfg)
	logger := zerologadapter.NewLogger(rootLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer cleanup()

	guard, err := newGuard(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dedup guard: %w", err)
	}

	metrics := prommetrics.DefaultMetrics("billingbridge")

	provider, err := stripeprovider.NewProvider(stripeprovider.Config{
		APIKey:          cfg.StripeSecretKey,
		WebhookSecret:   cfg.StripeWebhookSecret,
		PlanPrices:      cfg.PlanPrices(),
		SuccessURL:      cfg.ServerURL + "/payment-success",
		CancelURL:       cfg.ExtensionURL,
		PortalReturnURL: cfg.ExtensionURL,
		Store:           store,
		Guard:           guard,
		RateLimit:       cfg.WebhookRateLimit,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize billing provider: %w", err)
	}

	service := subscription.NewService(store, logger)

	var resolver *identity.Resolver
	if cfg.GoogleClientID != "" {
		verifier, err := identity.NewGoogleVerifier(cfg.GoogleClientID)
		if err != nil {
			return fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		resolver = identity.NewResolver(store, verifier, logger)
	} else {
		rootLogger.Warn().Msg("GOOGLE_CLIENT_ID not set, sign-in endpoint disabled")
	}

	handler, err := api.NewHandler(api.Config{
		Service:      service,
		Provider:     provider,
		Resolver:     resolver,
		ExtensionURL: cfg.ExtensionURL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:        handler,
		WebhookHandler: provider.WebhookHandler(),
		MetricsHandler: promhttp.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		RequestLogger:  &rootLogger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rootLogger.Info().
			Str("addr", cfg.Addr).
			Str("store", cfg.StoreBackend).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rootLogger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "billingbridge").Logger()
}

func newStore(ctx context.Context, cfg *config.Config) (subscription.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := fsstore.New(client, fsstore.Config{UsersCollection: cfg.FirestoreUsersCollection})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pgConfig := pgstore.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresURL
		store, err := pgstore.New(ctx, pgConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendMemory:
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newGuard(cfg *config.Config) (dedup.Guard, error) {
	if cfg.RedisAddr == "" {
		return dedup.NewMemory(24 * time.Hour), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return dedup.NewRedis(client, 24*time.Hour)
}

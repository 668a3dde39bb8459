package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/forsocials/replyriser-backend/api/routes"
	"github.com/forsocials/replyriser-backend/internal/accounts"
	"github.com/forsocials/replyriser-backend/internal/gate"
	"github.com/forsocials/replyriser-backend/internal/usage"
	stripewebhook "github.com/forsocials/replyriser-backend/internal/webhooks/stripe"
	"github.com/forsocials/replyriser-backend/pkg/clock"
	"github.com/forsocials/replyriser-backend/pkg/config"
	"github.com/forsocials/replyriser-backend/pkg/db"
	"github.com/forsocials/replyriser-backend/pkg/env"
	"github.com/forsocials/replyriser-backend/pkg/instance"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/metrics"
	"github.com/forsocials/replyriser-backend/pkg/migrate"
	"github.com/forsocials/replyriser-backend/pkg/openai"
	"github.com/forsocials/replyriser-backend/pkg/redis"
	"github.com/forsocials/replyriser-backend/pkg/stripe"
)

const (
	shutdownTimeout    = 30 * time.Second
	readHeaderTimeout  = 10 * time.Second
	stripeWebhookScope = "stripe_webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if _, err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sysClock := clock.System()
	accountRepo := accounts.NewRepository(dbClient.DB())

	accountService, err := accounts.NewService(accounts.ServiceParams{
		Repo:           accountRepo,
		Clock:          sysClock,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	provider, err := openai.NewClient(cfg.OpenAI, metrics.NewProviderMetrics(registry), logg)
	if err != nil {
		return err
	}

	var locker gate.Locker
	if cfg.Quota.Strict() {
		locker, err = gate.NewRedisLocker(redisClient, cfg.Quota.LockTTL, cfg.Quota.LockWait, cfg.Quota.LockPoll)
		if err != nil {
			return err
		}
	}

	gateService, err := gate.NewService(gate.ServiceParams{
		Accounts: accountRepo,
		Ledger:   usage.NewRepository(dbClient.DB()),
		Provider: provider,
		Locker:   locker,
		Clock:    sysClock,
		Metrics:  metrics.NewGateMetrics(registry),
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	deps := routes.Deps{
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       registry,
		AccountService: accountService,
		GateService:    gateService,
	}
	if err := wireStripe(ctx, cfg, logg, accountRepo, sysClock, redisClient, &deps); err != nil {
		return err
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":               cfg.App.Env,
		"addr":              addr,
		"instance":          instance.GetID(),
		"quota_enforcement": cfg.Quota.Enforcement,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// wireStripe enables the billing webhook when a signing secret is configured.
func wireStripe(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	accountRepo *accounts.Repository,
	clk clock.Clock,
	redisClient *redis.Client,
	deps *routes.Deps,
) error {
	if cfg.Stripe.Secret == "" {
		logg.Warn(ctx, "stripe secret not set, billing webhook disabled")
		return nil
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Accounts: accountRepo,
		Clock:    clk,
		Logger:   logg,
	})
	if err != nil {
		return err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, stripeWebhookScope)
	if err != nil {
		return err
	}

	deps.StripeClient = stripeClient
	deps.StripeWebhookService = webhookService
	deps.StripeWebhookGuard = guard
	return nil
}

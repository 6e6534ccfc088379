package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openpledge/pledged/internal/config"
	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/handler"
	"github.com/openpledge/pledged/internal/infra/cache"
	"github.com/openpledge/pledged/internal/infra/client"
	"github.com/openpledge/pledged/internal/infra/observability"
	"github.com/openpledge/pledged/internal/infra/queue"
	"github.com/openpledge/pledged/internal/infra/resilience"
	"github.com/openpledge/pledged/internal/infra/store"
	"github.com/openpledge/pledged/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("default_currency", cfg.DefaultCurrency),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("sqs_enabled", cfg.SQSEnabled),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pledged")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("currency-api")

	// --- Currency resolver ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	precisionCache := cache.New[int32](cfg.CacheTTL)
	currencyClient := client.NewCurrencyClient(httpClient, cfg.CurrencyAPIURL, cb, resilienceCfg, precisionCache, metrics)

	// --- Store ---
	statuses := domain.NewStatusRegistry()
	pledgeStore, err := store.NewMySQL(cfg.DatabaseDSN, statuses)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	// --- Service ---
	svc := service.NewPledgeService(pledgeStore, currencyClient, metrics, logger, cfg.DefaultCurrency)

	// --- Router ---
	router := handler.NewRouter(svc, metrics, logger, cfg.JWTSecret)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// --- Payment event consumer ---
	if cfg.SQSEnabled {
		consumer, err := queue.NewConsumer(ctx, queue.Config{
			QueueURL:  cfg.SQSQueueURL,
			Region:    cfg.SQSRegion,
			AccessKey: cfg.SQSAccessKey,
			SecretKey: cfg.SQSSecretKey,
		}, svc, logger, metrics)
		if err != nil {
			logger.Fatal("failed to init sqs consumer", zap.Error(err))
		}
		g.Go(func() error {
			if err := consumer.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/httpserver"
	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/identity"
	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/postgres"
	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/redis"
	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/telegram"
	"github.com/batalovmv/stream-alerts-sub001/internal/app"
	"github.com/batalovmv/stream-alerts-sub001/internal/message"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/config"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/logging"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/version"
	"github.com/batalovmv/stream-alerts-sub001/internal/queue"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	// drainTimeout bounds how long in-flight jobs may keep running after SIGTERM.
	drainTimeout = 30 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupCipher(cfg *config.Config) *crypto.Cipher {
	cipher := crypto.NewCipher(cfg.TokenEncryptionKey)
	if !cipher.Available() {
		slog.Warn("Custom bot tokens disabled", "reason", cipher.KeyError())
	}
	return cipher
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
}

// runGracefulShutdown stops the HTTP server first so no new jobs arrive,
// then cancels the worker and waits for in-flight jobs to settle.
func runGracefulShutdown(srv *httpserver.Server, stopWorker context.CancelFunc, workerDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopWorker()
		select {
		case <-workerDone:
		case <-time.After(drainTimeout):
			slog.Warn("Worker did not drain in time; active jobs will be reclaimed once the worker lease expires")
		}

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	queueMetrics := metrics.NewQueueMetrics(reg)
	authMetrics := metrics.NewAuthMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)
	dbMetrics := metrics.NewDBMetrics(reg)
	metrics.RegisterBuildInfo(reg, version.Get())

	ctx := context.Background()

	pool := setupDB(ctx, cfg, dbMetrics)
	defer pool.Close()

	rdb := setupRedis(ctx, cfg, redisMetrics)
	defer func() { _ = rdb.Close() }()

	cipher := setupCipher(cfg)
	links := message.Links{StreamURL: cfg.StreamURLTemplate, ProfileURL: cfg.ProfileURLTemplate}

	streamers := postgres.NewStreamerRepo(pool)
	profileCache := redis.NewProfileCache(rdb, cfg.ProfileCachePrefix, cfg.ProfileCacheTTL)
	identityClient := identity.NewClient(cfg.IdentityAPIBase, cfg.IdentityTimeout, authMetrics)

	sender := telegram.NewSender(cfg.TelegramBotToken, cfg.TelegramAPIEndpoint, cfg.DeliveryTimeout)
	if !sender.HasDefaultBot() {
		slog.Warn("TELEGRAM_BOT_TOKEN not set; only streamers with a custom bot will be notified")
	}

	transport := redis.NewQueueTransport(rdb, cfg.QueuePrefix, redis.WithWorkerID(cfg.WorkerID))
	events := queue.New(transport, queue.WithMaxAttempts(cfg.JobAttempts))

	authSvc := app.NewAuthService(profileCache, identityClient, streamers, cfg.ProfileDigestKey, cfg.IdentityTimeout, authMetrics)
	settingsSvc := app.NewSettingsService(streamers, cipher, links)
	notifier := app.NewNotifier(streamers, sender, cipher, links, cfg.DeliveryTimeout, queueMetrics)

	worker := queue.NewWorker(transport, notifier, queue.WorkerConfig{
		Concurrency: cfg.WorkerConcurrency,
		Backoff:     &retry.Exponential{Base: cfg.JobBackoff, Max: cfg.JobBackoffMax, Jitter: 0.2},
		Observer:    queueMetrics,
	})

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	srv := httpserver.NewServer(cfg, authSvc, settingsSvc, events, httpserver.Metrics{
		HTTP:    httpMetrics,
		Queue:   queueMetrics,
		Handler: metrics.Handler(reg),
	}, healthChecks(pool, rdb))

	done := runGracefulShutdown(srv, stopWorker, workerDone)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		stopWorker()
		<-workerDone
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}

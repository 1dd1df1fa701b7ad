// Command requeue-dead lists stream-event jobs that ran out of attempts and
// optionally puts them back on the queue with a fresh attempt budget.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/redis"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/logging"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		prefix   = flag.String("prefix", envOr("QUEUE_PREFIX", redis.DefaultQueuePrefix), "Queue key prefix")
		limit    = flag.Int64("limit", 100, "Maximum number of dead jobs to inspect")
		dryRun   = flag.Bool("dry-run", false, "List dead jobs without requeueing them")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}
	if *limit < 1 {
		log.Fatal("--limit must be at least 1")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	rdb, err := redis.NewClient(connectCtx, *redisURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	transport := redis.NewQueueTransport(rdb, *prefix)
	if err := requeueDead(ctx, transport, *limit, *dryRun); err != nil {
		log.Fatalf("Requeue failed: %v", err)
	}
}

func requeueDead(ctx context.Context, transport *redis.QueueTransport, limit int64, dryRun bool) error {
	jobs, err := transport.DeadJobs(ctx, limit)
	if err != nil {
		return err
	}

	slog.Info("Found dead jobs", "count", len(jobs), "dry_run", dryRun)

	var requeued, skipped int
	for _, job := range jobs {
		slog.Debug("Dead job",
			"job_id", job.ID,
			"name", job.Name,
			"attempts", job.Attempts,
			"enqueued_at", job.EnqueuedAt.Format(time.RFC3339),
			"last_error", job.LastError)

		if dryRun {
			continue
		}

		moved, err := transport.Requeue(ctx, job)
		if err != nil {
			return fmt.Errorf("requeue %s: %w", job.ID, err)
		}
		if !moved {
			skipped++
			continue
		}
		requeued++
	}

	slog.Info("Requeue summary", "inspected", len(jobs), "requeued", requeued, "skipped", skipped)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

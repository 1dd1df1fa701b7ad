package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/batalovmv/stream-alerts-sub001/internal/platform/correlation"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
)

const (
	DefaultConcurrency     = 3
	defaultPollTimeout     = 2 * time.Second
	defaultPromoteInterval = time.Second
	defaultReclaimInterval = 30 * time.Second
	transportErrorPause    = time.Second
)

// Handler processes one job. Returning an error schedules a retry unless the
// error is marked with retry.Permanent or the job has no attempts left.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// Outcome labels how a processing attempt ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetrying  Outcome = "retrying"
	OutcomeDead      Outcome = "dead"
)

// Observer receives processing and depth measurements.
type Observer interface {
	JobProcessed(name string, outcome Outcome, duration time.Duration)
	QueueDepth(stats Stats)
}

type noopObserver struct{}

func (noopObserver) JobProcessed(string, Outcome, time.Duration) {}
func (noopObserver) QueueDepth(Stats) {}

type WorkerConfig struct {
	Concurrency     int
	Backoff         retry.Backoff
	PollTimeout     time.Duration
	PromoteInterval time.Duration
	ReclaimInterval time.Duration
	Clock           clockwork.Clock
	Observer        Observer
}

// Worker runs a fixed pool of slots pulling from a Transport. At most
// Concurrency jobs are active at any time.
type Worker struct {
	transport Transport
	handler   Handler
	cfg       WorkerConfig
}

func NewWorker(transport Transport, handler Handler, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.DefaultBackoff()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = defaultPromoteInterval
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = defaultReclaimInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Worker{transport: transport, handler: handler, cfg: cfg}
}

// Run blocks until ctx is cancelled. Cancellation stops pulling new jobs;
// jobs already in flight run to completion before Run returns.
func (w *Worker) Run(ctx context.Context) {
	if l, ok := w.transport.(Leaser); ok {
		if err := l.Heartbeat(ctx); err != nil {
			slog.Warn("Failed to register worker lease", "error", err)
		}
	}
	if r, ok := w.transport.(Recoverer); ok {
		n, err := r.RecoverStalled(ctx)
		if err != nil {
			slog.Warn("Failed to recover stalled jobs", "error", err)
		} else if n > 0 {
			slog.Info("Recovered stalled jobs", "count", n)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.maintain(ctx)
	}()

	for slot := range w.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, slot)
		}()
	}

	slog.Info("Queue worker started", "concurrency", w.cfg.Concurrency)
	wg.Wait()
	slog.Info("Queue worker stopped")
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.transport.Pop(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Queue pop failed", "slot", slot, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-w.cfg.Clock.After(transportErrorPause):
			}
			continue
		}
		if job == nil {
			continue
		}

		// In-flight jobs are not cut short by shutdown.
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// maintain promotes due retries, publishes queue depth, renews the worker
// lease and reclaims jobs from expired workers.
func (w *Worker) maintain(ctx context.Context) {
	ticker := w.cfg.Clock.NewTicker(w.cfg.PromoteInterval)
	defer ticker.Stop()

	leaser, _ := w.transport.(Leaser)
	lastReclaim := w.cfg.Clock.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := w.cfg.Clock.Now()
			if leaser != nil {
				if err := leaser.Heartbeat(ctx); err != nil {
					slog.Warn("Failed to renew worker lease", "error", err)
				}
				if now.Sub(lastReclaim) >= w.cfg.ReclaimInterval {
					lastReclaim = now
					if _, err := leaser.ReclaimExpired(ctx); err != nil {
						slog.Warn("Failed to reclaim jobs from expired workers", "error", err)
					}
				}
			}
			if n, err := w.transport.PromoteDue(ctx, now); err != nil {
				slog.Warn("Failed to promote delayed jobs", "error", err)
			} else if n > 0 {
				slog.Debug("Promoted delayed jobs", "count", n)
			}
			if stats, err := w.transport.Stats(ctx); err == nil {
				w.cfg.Observer.QueueDepth(stats)
			}
		}
	}
}

// Process runs the handler for an active job and applies the resulting transition.
func (w *Worker) Process(ctx context.Context, job *Job) Outcome {
	ctx = correlation.WithJobID(ctx, job.ID)
	start := w.cfg.Clock.Now()

	err := w.invoke(ctx, job)
	outcome := w.settle(ctx, job, err)

	w.cfg.Observer.JobProcessed(job.Name, outcome, w.cfg.Clock.Since(start))
	return outcome
}

func (w *Worker) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Job handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}

func (w *Worker) settle(ctx context.Context, job *Job, err error) Outcome {
	if err == nil {
		if terr := job.Transition(StateCompleted); terr != nil {
			slog.ErrorContext(ctx, "Invalid job transition", "error", terr)
		}
		if terr := w.transport.Complete(ctx, job); terr != nil {
			slog.ErrorContext(ctx, "Failed to mark job completed", "error", terr)
		}
		slog.DebugContext(ctx, "Job completed", "name", job.Name, "attempts", job.Attempts)
		return OutcomeCompleted
	}

	job.LastError = err.Error()

	if retry.IsPermanent(err) || job.Exhausted() {
		if terr := job.Transition(StateDead); terr != nil {
			slog.ErrorContext(ctx, "Invalid job transition", "error", terr)
		}
		if terr := w.transport.Bury(ctx, job); terr != nil {
			slog.ErrorContext(ctx, "Failed to move job to dead set", "error", terr)
		}
		slog.ErrorContext(ctx, "Job dead",
			"name", job.Name,
			"error", err,
			"attempts", job.Attempts,
			"permanent", retry.IsPermanent(err))
		return OutcomeDead
	}

	delay, hinted := retry.DelayHint(err)
	if !hinted {
		delay = w.cfg.Backoff.Delay(job.Attempts)
	}

	if terr := job.Transition(StateRetrying); terr != nil {
		slog.ErrorContext(ctx, "Invalid job transition", "error", terr)
	}
	if terr := w.transport.Retry(ctx, job, w.cfg.Clock.Now().Add(delay)); terr != nil {
		slog.ErrorContext(ctx, "Failed to schedule job retry", "error", terr)
	}
	slog.WarnContext(ctx, "Job failed, retry scheduled",
		"name", job.Name,
		"error", err,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"delay", delay)
	return OutcomeRetrying
}

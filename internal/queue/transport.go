package queue

import (
	"context"
	"time"
)

// Transport stores jobs and moves them between the wait, active, delayed and dead sets.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Push stores a queued job. It returns false without error when a job with the same id exists.
	Push(ctx context.Context, job *Job) (bool, error)
	// Pop blocks up to timeout for the next waiting job, marks it active and returns it.
	// It returns (nil, nil) when nothing arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	// Complete removes a finished job.
	Complete(ctx context.Context, job *Job) error
	// Retry parks a retrying job until readyAt.
	Retry(ctx context.Context, job *Job, readyAt time.Time) error
	// Bury moves a dead job to the dead set, where it stays.
	Bury(ctx context.Context, job *Job) error
	// PromoteDue moves delayed jobs whose time has come back to the wait list.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// Recoverer is implemented by transports that can survive a crash with jobs
// left in the active set. RecoverStalled requeues them and runs once before
// the worker pops its first job.
type Recoverer interface {
	RecoverStalled(ctx context.Context) (int, error)
}

// Leaser is implemented by transports shared between several worker processes.
// A worker keeps its lease alive with Heartbeat; ReclaimExpired requeues the
// active jobs of workers whose lease lapsed.
type Leaser interface {
	Heartbeat(ctx context.Context) error
	ReclaimExpired(ctx context.Context) (int, error)
}

type Stats struct {
	Waiting int64
	Active  int64
	Delayed int64
	Dead    int64
}

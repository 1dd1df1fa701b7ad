package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/batalovmv/stream-alerts-sub001/internal/queue"
)

const (
	DefaultQueuePrefix = "queue:stream-events"
	DefaultLeaseTTL    = 30 * time.Second
	promoteBatch       = 100
)

// QueueTransport keeps jobs in Redis:
//
//	<prefix>:wait              list of ids, LPUSH in, BRPOPLPUSH out
//	<prefix>:active:<worker>   list of ids a worker is processing
//	<prefix>:lease:<worker>    expiring key held while the worker is alive
//	<prefix>:workers           set of worker ids that have held a lease
//	<prefix>:delayed           sorted set of ids scored by ready time (unix ms)
//	<prefix>:dead              list of ids that ran out of attempts
//	<prefix>:job:<id>          job JSON
//
// Each transport is one worker. Its active list is only handed back to the
// wait list by itself on startup or by another worker once its lease expired.
type QueueTransport struct {
	rdb      goredis.Cmdable
	prefix   string
	worker   string
	leaseTTL time.Duration
}

var (
	_ queue.Transport = (*QueueTransport)(nil)
	_ queue.Recoverer = (*QueueTransport)(nil)
	_ queue.Leaser    = (*QueueTransport)(nil)
)

type QueueOption func(*QueueTransport)

// WithWorkerID sets a stable worker id. A worker restarted under the same id
// reclaims the jobs it left active immediately instead of after the lease expires.
func WithWorkerID(id string) QueueOption {
	return func(t *QueueTransport) {
		if id != "" {
			t.worker = id
		}
	}
}

func WithLeaseTTL(ttl time.Duration) QueueOption {
	return func(t *QueueTransport) {
		if ttl > 0 {
			t.leaseTTL = ttl
		}
	}
}

func NewQueueTransport(rdb goredis.Cmdable, prefix string, opts ...QueueOption) *QueueTransport {
	if prefix == "" {
		prefix = DefaultQueuePrefix
	}
	t := &QueueTransport{
		rdb:      rdb,
		prefix:   prefix,
		worker:   uuid.NewString(),
		leaseTTL: DefaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WorkerID returns the id this transport's active list and lease are keyed by.
func (t *QueueTransport) WorkerID() string { return t.worker }

func (t *QueueTransport) waitKey() string { return t.prefix + ":wait" }
func (t *QueueTransport) activeKey() string { return t.activeKeyFor(t.worker) }
func (t *QueueTransport) activeKeyFor(worker string) string { return t.prefix + ":active:" + worker }
func (t *QueueTransport) leaseKey(worker string) string { return t.prefix + ":lease:" + worker }
func (t *QueueTransport) workersKey() string { return t.prefix + ":workers" }
func (t *QueueTransport) delayedKey() string { return t.prefix + ":delayed" }
func (t *QueueTransport) deadKey() string { return t.prefix + ":dead" }
func (t *QueueTransport) jobKey(id string) string { return t.prefix + ":job:" + id }

// pushScript stores the job only if its id is new and then queues the id.
// KEYS[1] = job key, KEYS[2] = wait list, ARGV[1] = job JSON, ARGV[2] = id.
var pushScript = goredis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
    redis.call('LPUSH', KEYS[2], ARGV[2])
    return 1
end
return 0
`)

// promoteScript moves due ids from the delayed set to the wait list, oldest first.
// KEYS[1] = delayed set, KEYS[2] = wait list, ARGV[1] = now (ms), ARGV[2] = batch size.
var promoteScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// recoverScript returns every id in the active list to the wait list.
// KEYS[1] = active list, KEYS[2] = wait list.
var recoverScript = goredis.NewScript(`
local n = 0
while redis.call('RPOPLPUSH', KEYS[1], KEYS[2]) do
    n = n + 1
end
return n
`)

// reclaimScript does what recoverScript does for another worker's active list,
// but only once that worker's lease is gone, and then forgets the worker.
// KEYS[1] = active list, KEYS[2] = wait list, KEYS[3] = lease key, KEYS[4] = workers set,
// ARGV[1] = worker id. Returns -1 while the lease is held.
var reclaimScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
    return -1
end
local n = 0
while redis.call('RPOPLPUSH', KEYS[1], KEYS[2]) do
    n = n + 1
end
redis.call('SREM', KEYS[4], ARGV[1])
return n
`)

// releaseScript moves one id from the active list back to the tail the wait
// list is popped from. KEYS[1] = active list, KEYS[2] = wait list, ARGV[1] = id.
var releaseScript = goredis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 1 then
    redis.call('RPUSH', KEYS[2], ARGV[1])
    return 1
end
return 0
`)

// requeueScript moves a dead id back to the wait list with its revived job data.
// KEYS[1] = dead list, KEYS[2] = job key, KEYS[3] = wait list, ARGV[1] = id, ARGV[2] = job JSON.
var requeueScript = goredis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 1 then
    redis.call('SET', KEYS[2], ARGV[2])
    redis.call('LPUSH', KEYS[3], ARGV[1])
    return 1
end
return 0
`)

func (t *QueueTransport) Push(ctx context.Context, job *queue.Job) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshaling job: %w", err)
	}

	added, err := pushScript.Run(ctx, t.rdb, []string{t.jobKey(job.ID), t.waitKey()}, data, job.ID).Int64()
	if err != nil {
		return false, fmt.Errorf("pushing job: %w", err)
	}
	return added == 1, nil
}

func (t *QueueTransport) Pop(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	id, err := t.rdb.BRPopLPush(ctx, t.waitKey(), t.activeKey(), timeout).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("popping job: %w", err)
	}

	data, err := t.rdb.Get(ctx, t.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Dropping queue entry without job data", "job_id", id)
			t.forget(ctx, id)
			return nil, nil
		}
		t.release(ctx, id)
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}

	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		slog.ErrorContext(ctx, "Dropping queue entry with unreadable job data", "job_id", id, "error", err)
		t.forget(ctx, id)
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}

	// A job recovered after a crash still says active.
	if job.State == queue.StateActive {
		job.State = queue.StateQueued
	}
	if err := job.Transition(queue.StateActive); err != nil {
		return nil, err
	}
	if err := t.save(ctx, t.rdb, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// release puts a popped id back so the next Pop sees it first.
func (t *QueueTransport) release(ctx context.Context, id string) {
	if err := releaseScript.Run(ctx, t.rdb, []string{t.activeKey(), t.waitKey()}, id).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to return job to wait list", "job_id", id, "error", err)
	}
}

func (t *QueueTransport) forget(ctx context.Context, id string) {
	if err := t.rdb.LRem(ctx, t.activeKey(), 1, id).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to remove job from active list", "job_id", id, "error", err)
	}
}

func (t *QueueTransport) Complete(ctx context.Context, job *queue.Job) error {
	pipe := t.rdb.TxPipeline()
	pipe.LRem(ctx, t.activeKey(), 1, job.ID)
	pipe.Del(ctx, t.jobKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return nil
}

func (t *QueueTransport) Retry(ctx context.Context, job *queue.Job, readyAt time.Time) error {
	pipe := t.rdb.TxPipeline()
	pipe.LRem(ctx, t.activeKey(), 1, job.ID)
	if err := t.save(ctx, pipe, job); err != nil {
		return err
	}
	pipe.ZAdd(ctx, t.delayedKey(), goredis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("scheduling retry for job %s: %w", job.ID, err)
	}
	return nil
}

func (t *QueueTransport) Bury(ctx context.Context, job *queue.Job) error {
	pipe := t.rdb.TxPipeline()
	pipe.LRem(ctx, t.activeKey(), 1, job.ID)
	if err := t.save(ctx, pipe, job); err != nil {
		return err
	}
	pipe.LPush(ctx, t.deadKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("burying job %s: %w", job.ID, err)
	}
	return nil
}

func (t *QueueTransport) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, t.rdb, []string{t.delayedKey(), t.waitKey()}, now.UnixMilli(), promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("promoting delayed jobs: %w", err)
	}
	return n, nil
}

// Heartbeat registers this worker and extends its lease.
func (t *QueueTransport) Heartbeat(ctx context.Context) error {
	pipe := t.rdb.TxPipeline()
	pipe.SAdd(ctx, t.workersKey(), t.worker)
	pipe.Set(ctx, t.leaseKey(t.worker), time.Now().UTC().Format(time.RFC3339), t.leaseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renewing worker lease: %w", err)
	}
	return nil
}

// RecoverStalled requeues whatever this worker's active list still holds from
// an earlier run, then reclaims the lists of expired workers. It must run
// before this transport pops anything.
func (t *QueueTransport) RecoverStalled(ctx context.Context) (int, error) {
	n, err := recoverScript.Run(ctx, t.rdb, []string{t.activeKey(), t.waitKey()}).Int()
	if err != nil {
		return 0, fmt.Errorf("recovering stalled jobs: %w", err)
	}
	reclaimed, err := t.ReclaimExpired(ctx)
	return n + reclaimed, err
}

// ReclaimExpired requeues the active jobs of registered workers whose lease has
// expired. Jobs held by live workers are left alone.
func (t *QueueTransport) ReclaimExpired(ctx context.Context) (int, error) {
	workers, err := t.rdb.SMembers(ctx, t.workersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("listing queue workers: %w", err)
	}

	total := 0
	for _, worker := range workers {
		if worker == t.worker {
			continue
		}
		keys := []string{t.activeKeyFor(worker), t.waitKey(), t.leaseKey(worker), t.workersKey()}
		n, err := reclaimScript.Run(ctx, t.rdb, keys, worker).Int()
		if err != nil {
			return total, fmt.Errorf("reclaiming jobs of worker %s: %w", worker, err)
		}
		if n > 0 {
			slog.InfoContext(ctx, "Reclaimed jobs from expired worker", "worker", worker, "count", n)
			total += n
		}
	}
	return total, nil
}

// Stats counts active jobs across every registered worker.
func (t *QueueTransport) Stats(ctx context.Context) (queue.Stats, error) {
	workers, err := t.rdb.SMembers(ctx, t.workersKey()).Result()
	if err != nil {
		return queue.Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}
	if !slices.Contains(workers, t.worker) {
		workers = append(workers, t.worker)
	}

	pipe := t.rdb.Pipeline()
	waiting := pipe.LLen(ctx, t.waitKey())
	delayed := pipe.ZCard(ctx, t.delayedKey())
	dead := pipe.LLen(ctx, t.deadKey())
	active := make([]*goredis.IntCmd, len(workers))
	for i, worker := range workers {
		active[i] = pipe.LLen(ctx, t.activeKeyFor(worker))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}

	stats := queue.Stats{
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}
	for _, cmd := range active {
		stats.Active += cmd.Val()
	}
	return stats, nil
}

// Job loads a job by id. It returns (nil, nil) when the job does not exist.
func (t *QueueTransport) Job(ctx context.Context, id string) (*queue.Job, error) {
	data, err := t.rdb.Get(ctx, t.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (t *QueueTransport) save(ctx context.Context, rdb goredis.Cmdable, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}
	if err := rdb.Set(ctx, t.jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

// DeadJobs returns up to limit dead jobs, most recently buried first.
func (t *QueueTransport) DeadJobs(ctx context.Context, limit int64) ([]*queue.Job, error) {
	ids, err := t.rdb.LRange(ctx, t.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing dead jobs: %w", err)
	}

	jobs := make([]*queue.Job, 0, len(ids))
	for _, id := range ids {
		job, err := t.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			slog.WarnContext(ctx, "Dead entry without job data", "job_id", id)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Requeue revives a dead job and puts it back on the wait list. It returns
// false when the job was no longer in the dead set.
func (t *QueueTransport) Requeue(ctx context.Context, job *queue.Job) (bool, error) {
	if err := job.Revive(); err != nil {
		return false, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}

	moved, err := requeueScript.Run(ctx, t.rdb, []string{t.deadKey(), t.jobKey(job.ID), t.waitKey()}, job.ID, data).Int64()
	if err != nil {
		return false, fmt.Errorf("requeueing job %s: %w", job.ID, err)
	}
	return moved == 1, nil
}

package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryTransport keeps everything in process. It backs tests and local runs
// without Redis; jobs do not survive a restart.
type MemoryTransport struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	wait    []string
	active  map[string]struct{}
	delayed map[string]time.Time
	dead    []string
	signal  chan struct{}
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		jobs:    make(map[string]*Job),
		active:  make(map[string]struct{}),
		delayed: make(map[string]time.Time),
		signal:  make(chan struct{}),
	}
}

// wake releases every Pop blocked on the current signal. Caller holds mu.
func (m *MemoryTransport) wake() {
	close(m.signal)
	m.signal = make(chan struct{})
}

func (m *MemoryTransport) Push(_ context.Context, job *Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return false, nil
	}
	stored := *job
	m.jobs[job.ID] = &stored
	m.wait = append(m.wait, job.ID)
	m.wake()
	return true, nil
}

func (m *MemoryTransport) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if len(m.wait) > 0 {
			id := m.wait[0]
			m.wait = m.wait[1:]
			job := m.jobs[id]
			if err := job.Transition(StateActive); err != nil {
				m.mu.Unlock()
				return nil, err
			}
			m.active[id] = struct{}{}
			out := *job
			m.mu.Unlock()
			return &out, nil
		}
		signal := m.signal
		m.mu.Unlock()

		select {
		case <-signal:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *MemoryTransport) Complete(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	delete(m.jobs, job.ID)
	return nil
}

func (m *MemoryTransport) Retry(_ context.Context, job *Job, readyAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	stored := *job
	m.jobs[job.ID] = &stored
	m.delayed[job.ID] = readyAt
	return nil
}

func (m *MemoryTransport) Bury(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	stored := *job
	m.jobs[job.ID] = &stored
	m.dead = append(m.dead, job.ID)
	return nil
}

func (m *MemoryTransport) PromoteDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []string
	for id, readyAt := range m.delayed {
		if !readyAt.After(now) {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	sort.Slice(due, func(i, k int) bool { return m.delayed[due[i]].Before(m.delayed[due[k]]) })
	for _, id := range due {
		delete(m.delayed, id)
		m.wait = append(m.wait, id)
	}
	m.wake()
	return len(due), nil
}

func (m *MemoryTransport) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Waiting: int64(len(m.wait)),
		Active:  int64(len(m.active)),
		Delayed: int64(len(m.delayed)),
		Dead:    int64(len(m.dead)),
	}, nil
}

// Job returns a copy of the stored job, for inspection in tests.
func (m *MemoryTransport) Job(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	out := *job
	return &out, true
}

// DeadJobs returns copies of buried jobs in burial order.
func (m *MemoryTransport) DeadJobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, len(m.dead))
	for _, id := range m.dead {
		j := *m.jobs[id]
		out = append(out, &j)
	}
	return out
}

var (
	_ Transport = (*MemoryTransport)(nil)
	_ Recoverer = (*MemoryTransport)(nil)
)

func (m *MemoryTransport) RecoverStalled(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id := range m.active {
		job := m.jobs[id]
		job.State = StateQueued
		m.wait = append(m.wait, id)
		delete(m.active, id)
		n++
	}
	if n > 0 {
		m.wake()
	}
	return n, nil
}

// Package queue moves stream events from ingestion to processing.
//
// A Job walks an explicit state machine:
//
//	queued -> active -> completed
//	                 -> retrying -> active
//	                 -> dead
//
// Storage is delegated to a Transport (in-memory for tests, Redis in production);
// the Worker owns the transitions and the retry policy.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateRetrying  State = "retrying"
	StateDead      State = "dead"
)

var transitions = map[State][]State{
	StateQueued:   {StateActive},
	StateActive:   {StateCompleted, StateRetrying, StateDead},
	StateRetrying: {StateActive},
}

type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	State       State           `json:"state"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// Transition moves the job to state to. Entering active counts an attempt.
func (j *Job) Transition(to State) error {
	for _, allowed := range transitions[j.State] {
		if allowed == to {
			j.State = to
			if to == StateActive {
				j.Attempts++
			}
			return nil
		}
	}
	return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.State, to)
}

// Revive resets a dead job to queued with a fresh attempt budget.
func (j *Job) Revive() error {
	if j.State != StateDead {
		return fmt.Errorf("job %s: only dead jobs can be revived, state is %s", j.ID, j.State)
	}
	j.State = StateQueued
	j.Attempts = 0
	j.LastError = ""
	return nil
}

// Exhausted reports whether the job has used all of its attempts.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("job %s: decode payload: %w", j.ID, err)
	}
	return nil
}

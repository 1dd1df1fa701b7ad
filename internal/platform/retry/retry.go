package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, use hinted or longer backoff
)

type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration
	OnRetry          func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

// Do runs op until it succeeds, classify says Stop, or MaxAttempts is reached.
// A DelayError hint overrides RateLimitBackoff for that attempt.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			var zero T
			if IsPermanent(err) {
				return zero, err
			}
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := backoff
		if action == After {
			wait = p.RateLimitBackoff
			if hint, ok := DelayHint(err); ok {
				wait = hint
			}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-time.After(wait):
			backoff *= 2
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// ClassifyError maps the marker errors of this package to actions.
// Anything unmarked is treated as transient.
func ClassifyError(err error) Action {
	if IsPermanent(err) {
		return Stop
	}
	if _, ok := DelayHint(err); ok {
		return After
	}
	return Retry
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so retry loops give up on it immediately. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// DelayError marks a transient failure whose source told us how long to wait,
// e.g. a 429 with a retry_after parameter.
type DelayError struct {
	Err   error
	Delay time.Duration
}

func (e *DelayError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.Delay)
}

func (e *DelayError) Unwrap() error { return e.Err }

// AfterDelay wraps err with a retry hint. AfterDelay(nil, d) is nil.
func AfterDelay(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &DelayError{Err: err, Delay: d}
}

// DelayHint returns the hinted delay carried by err, if any.
func DelayHint(err error) (time.Duration, bool) {
	var d *DelayError
	if errors.As(err, &d) && d.Delay > 0 {
		return d.Delay, true
	}
	return 0, false
}

package retry

import (
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before retry number attempt (1 for the first retry).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts a plain function to Backoff.
type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) Delay(attempt int) time.Duration { return f(attempt) }

// Exponential doubles Base per attempt up to Max and spreads the result by
// +/- Jitter (a fraction, 0.2 means 20%).
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultBackoff is 5s doubling to a 5m ceiling with 20% jitter.
func DefaultBackoff() *Exponential {
	return &Exponential{Base: 5 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			d = e.Max
			break
		}
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}

	if e.Jitter > 0 {
		r := rand.Float64
		if e.Rand != nil {
			r = e.Rand
		}
		spread := float64(d) * e.Jitter
		d = time.Duration(float64(d) - spread + 2*spread*r())
	}

	if d < 0 {
		return 0
	}
	return d
}

// Package identity resolves viewer credentials against the upstream identity API.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	viewerPath     = "/v1/viewer/me"
	maxBodyBytes   = 1 << 20
)

var (
	// ErrRejected means the identity API answered but refused the credential.
	ErrRejected = errors.New("credential rejected by identity provider")
	// ErrInvalidProfile means a 2xx answer whose body is not a usable profile.
	// The upstream is reachable, so it does not count against the breaker.
	ErrInvalidProfile = errors.New("identity provider returned an invalid profile")
)

// Client calls GET {base}/v1/viewer/me with the credential as a bearer token.
// Upstream outages trip a circuit breaker; rejected credentials do not.
type Client struct {
	base       string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	metrics    *metrics.AuthMetrics
}

var _ domain.IdentityProvider = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client; its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(base string, timeout time.Duration, m *metrics.AuthMetrics, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected) || errors.Is(err, ErrInvalidProfile) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Viewer(ctx context.Context, credential string) (*domain.Profile, error) {
	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		return c.fetch(ctx, credential)
	})
	c.metrics.IdentityRequest(resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return result.(*domain.Profile), nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidProfile):
		return "invalid_profile"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (c *Client) fetch(ctx context.Context, credential string) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+viewerPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)

	switch {
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, body)
		return nil, fmt.Errorf("identity provider returned %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, body)
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var profile domain.Profile
	if err := json.NewDecoder(body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if profile.AccountID == "" {
		return nil, fmt.Errorf("%w: missing accountId", ErrInvalidProfile)
	}
	return &profile, nil
}

// State reports the breaker state for readiness and debugging.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const (
	DefaultIdentityTimeout = 10 * time.Second
	digestLength           = 16
)

// AuthService resolves credentials through the profile cache, falling back to
// the identity provider on anything but a cache hit.
type AuthService struct {
	cache     domain.ProfileCache
	identity  domain.IdentityProvider
	streamers domain.StreamerRepository
	digestKey []byte
	timeout   time.Duration
	metrics   *metrics.AuthMetrics
	lookups   singleflight.Group
}

var _ domain.Authenticator = (*AuthService)(nil)

func NewAuthService(
	cache domain.ProfileCache,
	identity domain.IdentityProvider,
	streamers domain.StreamerRepository,
	digestKey string,
	timeout time.Duration,
	m *metrics.AuthMetrics,
) *AuthService {
	if timeout <= 0 {
		timeout = DefaultIdentityTimeout
	}
	return &AuthService{
		cache:     cache,
		identity:  identity,
		streamers: streamers,
		digestKey: []byte(digestKey),
		timeout:   timeout,
		metrics:   m,
	}
}

// Digest returns the first 16 hex chars of HMAC-SHA256(key, credential).
// The raw credential never leaves the process.
func Digest(key []byte, credential string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil))[:digestLength]
}

func (s *AuthService) Authenticate(ctx context.Context, credential string) (*domain.Streamer, error) {
	if credential == "" {
		s.metrics.Outcome("missing")
		return nil, domain.ErrUnauthenticated
	}

	profile, err := s.profile(ctx, credential)
	if err != nil {
		s.metrics.Outcome("rejected")
		return nil, err
	}

	if !profile.Linked() {
		s.metrics.Outcome("unlinked")
		return nil, domain.ErrNoChannelLinked
	}

	streamer, err := s.streamers.Upsert(ctx, profile)
	if err != nil {
		s.metrics.Outcome("error")
		return nil, fmt.Errorf("failed to upsert streamer: %w", err)
	}

	s.metrics.Outcome("ok")
	return streamer, nil
}

func (s *AuthService) profile(ctx context.Context, credential string) (*domain.Profile, error) {
	digest := Digest(s.digestKey, credential)

	lookup := s.cache.Get(ctx, digest)
	s.metrics.CacheLookup(lookup.Status.String())
	if lookup.Status == domain.LookupHit {
		return lookup.Profile, nil
	}

	// Concurrent misses for one digest share a single upstream call. The call
	// outlives any one caller so a disconnecting client does not fail the rest.
	ch := s.lookups.DoChan(digest, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), digest, credential)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Profile), nil
	}
}

func (s *AuthService) fetch(ctx context.Context, digest, credential string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := s.identity.Viewer(ctx, credential)
	if err != nil {
		slog.WarnContext(ctx, "Identity lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	if err := s.cache.Set(ctx, digest, profile); err != nil {
		slog.WarnContext(ctx, "Failed to cache profile", "error", err)
	}
	return profile, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const (
	DefaultProfilePrefix = "auth:profile:"
	DefaultProfileTTL    = 5 * time.Minute
)

// ProfileCache stores identity profiles as JSON under prefix+digest.
// Expiry is left to Redis; a read never returns an entry older than ttl.
type ProfileCache struct {
	rdb    goredis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ domain.ProfileCache = (*ProfileCache)(nil)

func NewProfileCache(rdb goredis.Cmdable, prefix string, ttl time.Duration) *ProfileCache {
	if prefix == "" {
		prefix = DefaultProfilePrefix
	}
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &ProfileCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *ProfileCache) Get(ctx context.Context, digest string) domain.Lookup {
	data, err := c.rdb.Get(ctx, c.key(digest)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Miss()
		}
		slog.WarnContext(ctx, "Profile cache GET failed", "error", err)
		return domain.LookupFailed(err)
	}

	var profile domain.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached profile", "error", err)
		return domain.LookupFailed(err)
	}
	return domain.Hit(&profile)
}

func (c *ProfileCache) Set(ctx context.Context, digest string, profile *domain.Profile) error {
	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(digest), encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write profile cache: %w", err)
	}
	return nil
}

func (c *ProfileCache) key(digest string) string {
	return c.prefix + digest
}

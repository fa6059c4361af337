package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"commitstats/internal/gitlog"
	"commitstats/internal/models"
)

const keyPrefix = "commitstats:times"

// CachedSource serves commit times from Redis, falling back to the wrapped source.
type CachedSource struct {
	inner  gitlog.Source
	client redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

// New wraps inner with a Redis-backed cache. Entries expire after ttl.
func New(inner gitlog.Source, client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Key returns the cache key used for a repository. It is derived from the
// log location and revision count, not the repository ID.
func Key(repo models.Repository) string {
	location := strings.TrimRight(repo.BaseURL, "/") + "/" + strings.Trim(repo.Path, "/")
	return fmt.Sprintf("%s:%s:%d", keyPrefix, location, repo.RevisionCount)
}

// CommitTimes implements gitlog.Source. Redis errors are logged, never returned.
func (c *CachedSource) CommitTimes(ctx context.Context, repo models.Repository) ([]time.Time, error) {
	key := Key(repo)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var times []time.Time
		jsonErr := json.Unmarshal(raw, &times)
		if jsonErr == nil {
			c.logger.Debug().Str("key", key).Int("commits", len(times)).Msg("cache hit")
			return times, nil
		}
		c.logger.Warn().Err(jsonErr).Str("key", key).Msg("discarding corrupt cache entry")
	case errors.Is(err, redis.Nil):
		c.logger.Debug().Str("key", key).Msg("cache miss")
	default:
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	return c.fetch(ctx, key, repo)
}

// Refresh drops the cached entry for repo and reloads it from the wrapped source.
func (c *CachedSource) Refresh(ctx context.Context, repo models.Repository) ([]time.Time, error) {
	if err := c.Invalidate(ctx, repo); err != nil {
		c.logger.Warn().Err(err).Msg("cache invalidate failed")
	}
	return c.fetch(ctx, Key(repo), repo)
}

func (c *CachedSource) fetch(ctx context.Context, key string, repo models.Repository) ([]time.Time, error) {
	times, err := c.inner.CommitTimes(ctx, repo)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(times)
	if err != nil {
		return times, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return times, nil
}

// Invalidate drops the cached entry for repo.
func (c *CachedSource) Invalidate(ctx context.Context, repo models.Repository) error {
	if err := c.client.Del(ctx, Key(repo)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", repo.ID, err)
	}
	return nil
}

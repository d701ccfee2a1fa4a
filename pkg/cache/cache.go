// Package cache provides the optional read cache in front of the engine's
// per-user views. Entries may be stale; every mutation invalidates the
// affected user's keys after it commits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = rediscache.ErrCacheMiss

// Gateway is a TTL key/value cache.
type Gateway interface {
	// Get decodes the cached value of key into target.
	// Returns ErrCacheMiss if the key is not cached.
	Get(ctx context.Context, key string, target any) error

	// Set caches value under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Invalidate removes every key matching a glob pattern.
	Invalidate(ctx context.Context, pattern string) error
}

// Kind is the first component of a cache key.
type Kind string

const (
	KindStats  Kind = "stats"
	KindBadges Kind = "badges"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// Key is a composite (kind, user, period) cache key.
type Key struct {
	Kind   Kind
	UserID int64
	// Period is a date key for daily/weekly views and empty otherwise.
	Period string
}

// String renders the key as kind:user:period.
func (k Key) String() string {
	period := k.Period
	if period == "" {
		period = "all"
	}
	return fmt.Sprintf("%s:%d:%s", k.Kind, k.UserID, period)
}

// UserPattern matches every key of a user.
func UserPattern(userID int64) string {
	return fmt.Sprintf("*:%d:*", userID)
}

// Reader serves values through a Gateway, loading and storing them on a miss.
// Concurrent misses of the same key share one load.
type Reader struct {
	gateway Gateway
	group   singleflight.Group
	logger  *slog.Logger
}

// NewReader creates a Reader over gateway. A nil gateway disables caching.
func NewReader(gateway Gateway, logger *slog.Logger) *Reader {
	if gateway == nil {
		gateway = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{gateway: gateway, logger: logger}
}

// Gateway returns the underlying cache.
func (r *Reader) Gateway() Gateway {
	return r.gateway
}

// InvalidateUser drops every cached view of a user. Failures are logged only.
func (r *Reader) InvalidateUser(ctx context.Context, userID int64) {
	if err := r.gateway.Invalidate(ctx, UserPattern(userID)); err != nil {
		r.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
	}
}

// ReadThrough returns the cached value of key or calls load and caches the result.
// Cache errors never fail the read; load errors are returned as is.
func ReadThrough[T any](ctx context.Context, r *Reader, key Key, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	k := key.String()

	var cached T
	err := r.gateway.Get(ctx, k, &cached)
	if err == nil {
		r.logger.Debug("cache hit", "key", k)
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("cache read failed", "key", k, "error", err)
	}

	v, err, _ := r.group.Do(k, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		if err := r.gateway.Set(ctx, k, loaded, ttl); err != nil {
			r.logger.Warn("cache write failed", "key", k, "error", err)
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Noop is a Gateway that caches nothing.
type Noop struct{}

func (Noop) Get(context.Context, string, any) error                { return ErrCacheMiss }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Invalidate(context.Context, string) error              { return nil }

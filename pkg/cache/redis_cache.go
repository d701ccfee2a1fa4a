package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisCache is a Gateway shared between processes, optionally fronted by a
// small local TinyLFU cache.
type RedisCache struct {
	client redis.UniversalClient
	cache  *rediscache.Cache
}

// NewRedisCache creates a RedisCache. localSize <= 0 disables the local tier.
func NewRedisCache(client redis.UniversalClient, localSize int, localTTL time.Duration) *RedisCache {
	var local rediscache.LocalCache
	if localSize > 0 {
		local = rediscache.NewTinyLFU(localSize, localTTL)
	}
	return &RedisCache{
		client: client,
		cache: rediscache.New(&rediscache.Options{
			Redis:      client,
			LocalCache: local,
		}),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, target any) error {
	return c.cache.Get(ctx, key, target)
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.cache.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
}

// Invalidate scans every master for keys matching pattern and deletes them
// from both tiers.
func (c *RedisCache) Invalidate(ctx context.Context, pattern string) error {
	var (
		keys []string
		err  error
	)
	if cluster, ok := c.client.(*redis.ClusterClient); ok {
		keys, err = scanNodes(ctx, cluster.ForEachMaster, pattern)
	} else {
		keys, err = scanKeys(ctx, c.client, pattern)
	}
	if err != nil {
		return fmt.Errorf("scan cache keys %q: %w", pattern, err)
	}

	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete cache key %s: %w", key, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// scanNodes scans every node visited by forEach. forEach may run its
// callback concurrently.
func scanNodes[S scanner](ctx context.Context, forEach func(context.Context, func(context.Context, S) error) error, pattern string) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	err := forEach(ctx, func(ctx context.Context, node S) error {
		found, err := scanKeys(ctx, node, pattern)
		if err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return nil
	})
	return keys, err
}

func scanKeys(ctx context.Context, s scanner, pattern string) ([]string, error) {
	var keys []string
	iter := s.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

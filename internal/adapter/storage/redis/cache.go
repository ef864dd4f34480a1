package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exchange-ledger/config"
	"exchange-ledger/pkg/breaker"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrValueTooLarge is returned by Set for values above the configured cap.
// Oversized values are rejected outright, never truncated.
var ErrValueTooLarge = errors.New("cache value exceeds size limit")

// CacheLayer implements ports.Cache backed by Redis. Every operation is
// best-effort: remote failures are logged, counted by the circuit breaker,
// and absorbed; the datastore stays the source of truth. Once the breaker
// trips, all operations short-circuit to no-ops until the cooldown elapses.
type CacheLayer struct {
	client        *goredis.Client
	breaker       *breaker.Breaker
	maxValueBytes int
	log           zerolog.Logger
}

// NewCacheLayer creates a Redis-backed cache with circuit-breaker protection.
func NewCacheLayer(client *goredis.Client, cfg config.CacheConfig, log zerolog.Logger) *CacheLayer {
	return &CacheLayer{
		client:        client,
		breaker:       breaker.New(cfg.FailureThreshold, cfg.CooldownPeriod),
		maxValueBytes: cfg.MaxValueBytes,
		log:           log,
	}
}

// Get returns the cached value, or a miss on absence, remote failure, or an
// open breaker. It never surfaces an error to the caller.
func (c *CacheLayer) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.breaker.Allow() {
		return nil, false
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			c.breaker.Success()
			return nil, false
		}
		c.breaker.Failure()
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		return nil, false
	}

	c.breaker.Success()
	return val, true
}

// Set stores a value with TTL. Values above the size cap are rejected with
// ErrValueTooLarge; remote failures are swallowed after logging.
func (c *CacheLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.maxValueBytes > 0 && len(value) > c.maxValueBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLarge, len(value), c.maxValueBytes)
	}
	if !c.breaker.Allow() {
		return nil
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.breaker.Failure()
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return nil
	}

	c.breaker.Success()
	return nil
}

// Delete removes a key, fire-and-log.
func (c *CacheLayer) Delete(ctx context.Context, key string) {
	if !c.breaker.Allow() {
		return
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.breaker.Failure()
		c.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		return
	}
	c.breaker.Success()
}

// Clear removes all keys under a prefix via SCAN+DEL, fire-and-log.
func (c *CacheLayer) Clear(ctx context.Context, prefix string) {
	if !c.breaker.Allow() {
		return
	}

	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.breaker.Failure()
		c.log.Warn().Err(err).Str("prefix", prefix).Msg("cache scan failed")
		return
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.breaker.Failure()
			c.log.Warn().Err(err).Str("prefix", prefix).Msg("cache clear failed")
			return
		}
	}
	c.breaker.Success()
}

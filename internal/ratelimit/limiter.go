// Package ratelimit implements the Rate Limiter (C2): fixed-window
// counters keyed by (bucket, client key), backed by Redis with an
// in-memory fallback so the API stays available through a Redis
// outage, grounded on the fixed-window INCR+EXPIRE idiom the teacher
// uses for auth-endpoint and websocket-connection limiting.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pollrelay/pollengine/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Result is the outcome of a single check(bucket, key) call (§4.2).
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// BucketConfig configures one named rate-limit bucket. Overridable at
// runtime via admin settings.
type BucketConfig struct {
	Window      time.Duration
	MaxRequests int
	Enabled     bool
}

// Well-known bucket names (§4.2 defaults).
const (
	BucketRegistration  = "registration"
	BucketPasswordReset = "password-reset"
	BucketPollCreation  = "poll-creation"
	BucketVote          = "vote"
	BucketEmail         = "email"
	BucketAPIGeneral    = "api-general"
	BucketLogin         = "login"
	BucketEmailCheck    = "email-check"
	BucketAI            = "ai"
)

// DefaultBuckets mirrors the default limits enumerated in §4.2.
func DefaultBuckets() map[string]BucketConfig {
	return map[string]BucketConfig{
		BucketRegistration:  {Window: time.Hour, MaxRequests: 5, Enabled: true},
		BucketPasswordReset: {Window: 15 * time.Minute, MaxRequests: 3, Enabled: true},
		BucketPollCreation:  {Window: time.Minute, MaxRequests: 10, Enabled: true},
		BucketVote:          {Window: 10 * time.Second, MaxRequests: 30, Enabled: true},
		BucketEmail:         {Window: time.Minute, MaxRequests: 5, Enabled: true},
		BucketAPIGeneral:    {Window: time.Minute, MaxRequests: 100, Enabled: true},
		BucketLogin:         {Window: 15 * time.Minute, MaxRequests: 5, Enabled: true},
		BucketEmailCheck:    {Window: time.Minute, MaxRequests: 10, Enabled: true},
		BucketAI:            {Window: time.Hour, MaxRequests: 20, Enabled: true},
	}
}

// Limiter is the C2 contract: check(bucket, key) -> allow/deny plus
// the bookkeeping a handler needs for X-RateLimit-* / Retry-After.
type Limiter interface {
	Check(ctx context.Context, bucket, key string) (Result, error)
	SetBucket(bucket string, cfg BucketConfig)
}

// RedisLimiter implements Limiter against Redis, falling back to an
// in-process counter (fail open is never acceptable for rate limits
// that protect capacity, so the fallback still enforces limits — it
// just won't be shared across replicas).
type RedisLimiter struct {
	redis   *redis.Client
	log     *zap.SugaredLogger
	mu      sync.RWMutex
	buckets map[string]BucketConfig
	prefix  string

	fallback *memoryLimiter
}

// NewRedisLimiter builds a Limiter seeded with DefaultBuckets.
func NewRedisLimiter(rdb *redis.Client, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		redis:    rdb,
		log:      logger.GetLogger().Named("ratelimit"),
		buckets:  DefaultBuckets(),
		prefix:   keyPrefix,
		fallback: newMemoryLimiter(),
	}
}

// SetBucket overrides a bucket's configuration at runtime (admin
// settings).
func (l *RedisLimiter) SetBucket(bucket string, cfg BucketConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[bucket] = cfg
}

func (l *RedisLimiter) bucketConfig(bucket string) (BucketConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.buckets[bucket]
	return cfg, ok
}

// Check implements the fixed-window INCR+EXPIRE algorithm: the first
// request in a window sets the expiry, every subsequent request in
// that window only increments. The window boundary means the first
// request of a new window is always counted as #1 (§4.2 tie-break).
func (l *RedisLimiter) Check(ctx context.Context, bucket, key string) (Result, error) {
	cfg, ok := l.bucketConfig(bucket)
	if !ok || !cfg.Enabled {
		return Result{Allowed: true}, nil
	}

	redisKey := fmt.Sprintf("%s:ratelimit:%s:%s", l.prefix, bucket, key)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	_, err := pipe.Exec(ctx)
	if err != nil {
		l.log.Warnw("redis rate limiter unavailable, falling back to in-memory", "bucket", bucket, "error", err)
		return l.fallback.check(bucket, key, cfg), nil
	}

	count := int(incr.Val())
	ttl, err := l.redis.TTL(ctx, redisKey).Result()
	if err == nil && ttl == -1 {
		// The counter has no expiry yet, so this request opened the window.
		if expErr := l.redis.Expire(ctx, redisKey, cfg.Window).Err(); expErr != nil {
			l.log.Warnw("failed to set rate-limit window expiry", "bucket", bucket, "error", expErr)
		}
		ttl = cfg.Window
	}
	if err != nil || ttl < 0 {
		ttl = cfg.Window
	}

	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	if count > cfg.MaxRequests {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    time.Now().Add(ttl),
			RetryAfter: ttl,
		}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

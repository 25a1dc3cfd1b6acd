package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginState is the extra bookkeeping the login bucket keeps beyond a
// plain counter (§4.2): consecutive failures and an optional cooldown.
type loginState struct {
	FailedAttempts int       `json:"failedAttempts"`
	FirstAttempt   time.Time `json:"firstAttempt"`
	LockedUntil    time.Time `json:"lockedUntil"`
}

// LoginLimiter tracks failed login attempts per (identifier, IP) key
// and locks the key out once the bucket's max is reached, with a
// configurable cooldown. A successful login clears the entry.
type LoginLimiter struct {
	redis  *redis.Client
	prefix string
	cfg    BucketConfig
}

// NewLoginLimiter builds a LoginLimiter using the login bucket's
// window as both the failure-accumulation window and, doubled, the
// lockout cooldown.
func NewLoginLimiter(rdb *redis.Client, keyPrefix string, cfg BucketConfig) *LoginLimiter {
	return &LoginLimiter{redis: rdb, prefix: keyPrefix, cfg: cfg}
}

// LoginCheckResult reports whether the key is currently locked and,
// if so, for how long.
type LoginCheckResult struct {
	Locked    bool
	CoolsDown time.Duration
}

// Check loads the current state and reports whether the key is
// locked. It records nothing; a failed credential check is recorded
// by a separate call to RecordFailure.
func (l *LoginLimiter) Check(ctx context.Context, key string) (LoginCheckResult, error) {
	state, err := l.load(ctx, key)
	if err != nil {
		return LoginCheckResult{}, err
	}

	if !state.LockedUntil.IsZero() && time.Now().Before(state.LockedUntil) {
		return LoginCheckResult{Locked: true, CoolsDown: time.Until(state.LockedUntil)}, nil
	}

	return LoginCheckResult{}, nil
}

// RecordFailure increments the failure counter and, once it reaches
// the bucket's max, sets a lockout cooldown.
func (l *LoginLimiter) RecordFailure(ctx context.Context, key string) (LoginCheckResult, error) {
	state, err := l.load(ctx, key)
	if err != nil {
		return LoginCheckResult{}, err
	}

	now := time.Now()
	if state.FirstAttempt.IsZero() || now.Sub(state.FirstAttempt) > l.cfg.Window {
		state = loginState{FirstAttempt: now}
	}
	state.FailedAttempts++

	result := LoginCheckResult{}
	if state.FailedAttempts >= l.cfg.MaxRequests {
		cooldown := l.cfg.Window * 2
		state.LockedUntil = now.Add(cooldown)
		result = LoginCheckResult{Locked: true, CoolsDown: cooldown}
	}

	if err := l.save(ctx, key, state); err != nil {
		return result, err
	}
	return result, nil
}

// ClearOnSuccess removes the entry after a successful login.
func (l *LoginLimiter) ClearOnSuccess(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.redisKey(key)).Err()
}

func (l *LoginLimiter) load(ctx context.Context, key string) (loginState, error) {
	raw, err := l.redis.Get(ctx, l.redisKey(key)).Bytes()
	if err == redis.Nil {
		return loginState{}, nil
	}
	if err != nil {
		return loginState{}, err
	}
	var state loginState
	if err := json.Unmarshal(raw, &state); err != nil {
		return loginState{}, err
	}
	return state, nil
}

func (l *LoginLimiter) save(ctx context.Context, key string, state loginState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ttl := l.cfg.Window * 2
	return l.redis.Set(ctx, l.redisKey(key), raw, ttl).Err()
}

func (l *LoginLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:login-guard:%s", l.prefix, key)
}

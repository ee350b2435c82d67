package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
)

const keyPrefix = "ratelimit:"

// FixedWindow allows Limit requests per key in each Window. Counters live in
// Redis so every API replica shares them, and they expire with the window.
type FixedWindow struct {
	redis  redis.RedisAdapter
	limit  int64
	window time.Duration
}

func NewFixedWindow(adapter redis.RedisAdapter, limit int, window time.Duration) (*FixedWindow, error) {
	if adapter == nil {
		return nil, errors.New("redis adapter is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	return &FixedWindow{redis: adapter, limit: int64(limit), window: window}, nil
}

// Allow counts one request for key and reports whether it is within the
// limit.
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, _, err := l.redis.IncrWithTTL(keyPrefix+key, l.window)
	if err != nil {
		return false, err
	}
	return n <= l.limit, nil
}

// Remaining returns how many requests key has left in the current window
// and when the window resets.
func (l *FixedWindow) Remaining(ctx context.Context, key string) (int64, time.Duration, error) {
	raw, err := l.redis.Get(keyPrefix + key)
	if errors.Is(err, redis.NilError) {
		return l.limit, l.window, nil
	}
	if err != nil {
		return 0, 0, err
	}
	var used int64
	if _, err := fmt.Sscanf(string(raw), "%d", &used); err != nil {
		return 0, 0, err
	}
	ttl, err := l.redis.TTL(keyPrefix + key)
	if err != nil {
		return 0, 0, err
	}
	return max(l.limit-used, 0), ttl, nil
}

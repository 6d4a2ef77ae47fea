package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares fixed-window counters between instances through Redis.
// Each (identifier, window) pair is one key, expired after the window ends.
type RedisStore struct {
	rdb     redis.UniversalClient
	limit   int
	window  time.Duration
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStore allows limit requests per identifier per window.
func NewRedisStore(rdb redis.UniversalClient, limit int, win time.Duration) *RedisStore {
	if limit <= 0 {
		limit = DefaultRequests
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &RedisStore{
		rdb:     rdb,
		limit:   limit,
		window:  win,
		prefix:  "supportbot:ratelimit:",
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

// WithClock overrides the time source used to pick the window.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

// WithPrefix changes the key namespace.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	s.prefix = prefix
	return s
}

func (s *RedisStore) key(identifier string) string {
	slot := s.now().UnixNano() / int64(s.window)
	return fmt.Sprintf("%s%s:%d", s.prefix, identifier, slot)
}

// Allow increments the identifier's counter for the current window.
func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.key(identifier)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire %s: %w", key, err)
		}
	}
	return n <= int64(s.limit), nil
}

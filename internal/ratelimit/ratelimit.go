// Package ratelimit provides fixed-window request counters usable as echo
// rate limiter stores.
package ratelimit

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4/middleware"
)

const (
	DefaultRequests = 20
	DefaultWindow   = 60 * time.Second
)

// Message is the body text returned to throttled clients.
const Message = "Too many requests. Please wait a moment before trying again."

var (
	_ middleware.RateLimiterStore = (*MemoryStore)(nil)
	_ middleware.RateLimiterStore = (*RedisStore)(nil)
)

type window struct {
	start time.Time
	count int
}

// MemoryStore counts requests per identifier in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore allows limit requests per identifier per window.
// Non-positive arguments fall back to the defaults.
func NewMemoryStore(limit int, win time.Duration) *MemoryStore {
	if limit <= 0 {
		limit = DefaultRequests
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &MemoryStore{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Allow records a request and reports whether it is within the limit.
func (s *MemoryStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.window {
		s.sweep(now)
	}

	w, ok := s.windows[identifier]
	if !ok || now.Sub(w.start) >= s.window {
		w = &window{start: now}
		s.windows[identifier] = w
	}
	w.count++
	return w.count <= s.limit, nil
}

// sweep drops expired windows. Callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	for id, w := range s.windows {
		if now.Sub(w.start) >= s.window {
			delete(s.windows, id)
		}
	}
	s.lastSweep = now
}

// Len reports how many identifiers are tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vestival/algorand-tracker/internal/logging"
)

// Limiter checks requests against a shared store and falls back to process
// memory when the store is unavailable
type Limiter struct {
	store    Store
	fallback Store
	window   time.Duration
	max      int
	prefix   string
	metrics  *Metrics
	now      func() time.Time
}

// NewLimiter creates a limiter. store may be nil, in which case only the
// in-memory fallback is used.
func NewLimiter(cfg *Config, store Store) (*Limiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = cfg.withDefaults()

	return &Limiter{
		store:    store,
		fallback: NewMemoryStore(),
		window:   cfg.Window,
		max:      cfg.Max,
		prefix:   cfg.KeyPrefix,
		metrics:  NewMetrics(),
		now:      time.Now,
	}, nil
}

// WithClock overrides the clock
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Metrics returns the limiter's counters
func (l *Limiter) Metrics() *Metrics {
	return l.metrics
}

// Window returns the configured window
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Max returns the configured number of requests per window
func (l *Limiter) Max() int {
	return l.max
}

// Key builds the limiter key for one route, user and client IP
func Key(route, userID, ip string) string {
	return route + ":" + userID + ":" + ip
}

// Allow records a hit for key and reports whether it is within the limit
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	now := l.now()

	if l.store != nil {
		decision, err := l.store.Hit(ctx, l.prefix+key, now, l.window, l.max)
		if err == nil {
			l.metrics.record(decision, false)
			return decision
		}
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("rate limit store unavailable, using in-memory fallback")
	}

	decision, _ := l.fallback.Hit(ctx, key, now, l.window, l.max)
	l.metrics.record(decision, l.store != nil)
	return decision
}

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Count      int           // hits in the window, including this one when allowed
	RetryAfter time.Duration // zero when allowed
}

// Store records hits for a key and decides whether another one fits in the window
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error)
}

// slidingWindowScript trims hits older than the window, then records a hit only
// when the window still has room. Returns {allowed, count, retryAfterMs}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local max = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)

	if count >= max then
		local retry = window
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if oldest[2] then
			retry = tonumber(oldest[2]) + window - now
		end
		return {0, count, retry}
	end

	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, count + 1, 0}
`)

// RedisStore is a sliding-window store shared by every API instance
type RedisStore struct {
	redis redis.Cmdable
}

// NewRedisStore creates a store over a Redis client
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{redis: client}
}

// Hit atomically trims, counts and records a hit for key
func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	result, err := slidingWindowScript.Run(ctx, s.redis, []string{key},
		now.UnixMilli(), window.Milliseconds(), max, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	retry := time.Duration(result[2]) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: result[0] == 1, Count: int(result[1]), RetryAfter: retry}, nil
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key in process memory. It refills max
// tokens per window and serves as the fallback when the shared store fails.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	maxKeys int
}

// NewMemoryStore creates an in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), maxKeys: DefaultMaxKeys}
}

// Hit consumes one token for key if available
func (s *MemoryStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	if max <= 0 {
		return Decision{RetryAfter: window}, nil
	}
	interval := window / time.Duration(max)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		if len(s.entries) >= s.maxKeys {
			s.sweep(now, window)
		}
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Every(interval), max)}
		s.entries[key] = entry
	}
	entry.lastSeen = now

	if entry.limiter.AllowN(now, 1) {
		used := max - int(entry.limiter.TokensAt(now))
		return Decision{Allowed: true, Count: used}, nil
	}

	missing := 1 - entry.limiter.TokensAt(now)
	return Decision{
		Allowed:    false,
		Count:      max,
		RetryAfter: time.Duration(missing * float64(interval)),
	}, nil
}

// sweep drops keys idle for more than a window; a refilled bucket is equivalent to a new one
func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	for key, entry := range s.entries {
		if now.Sub(entry.lastSeen) > window {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

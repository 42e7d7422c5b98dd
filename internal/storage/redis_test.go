package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vestival/algorand-tracker/internal/config"
)

// testContext bounds a storage call to the test's lifetime
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	defer mr.Close()

	cfg := &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 2,
	}

	cache, err := NewRedisCache(testContext(t), cfg)
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if err := cache.Ping(testContext(t)); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestRedisCache_SetGetDel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	defer mr.Close()

	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer func() {
		_ = cache.Close()
	}()
	ctx := testContext(t)

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() on missing key error = %v, want ErrCacheMiss", err)
	}

	if err := cache.Set(ctx, "test:key", "value", 10*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := cache.Get(ctx, "test:key")
	if err != nil || got != "value" {
		t.Errorf("Get() = %q, %v", got, err)
	}

	exists, err := cache.Exists(ctx, "test:key")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v", exists, err)
	}

	if err := cache.Del(ctx, "test:key"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	exists, _ = cache.Exists(ctx, "test:key")
	if exists {
		t.Error("key still exists after Del()")
	}
}

func TestNewRedisCache_Unavailable(t *testing.T) {
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxConnections: 1}
	if _, err := NewRedisCache(testContext(t), cfg); err == nil {
		t.Error("NewRedisCache() expected error for unreachable server")
	}
}

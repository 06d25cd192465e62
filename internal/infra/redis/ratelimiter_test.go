package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newWindowLimiter(t *testing.T, limit int64, now *time.Time, sleepFn func(ctx context.Context, d time.Duration) error) *RedisRateLimiter {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter, err := newRedisRateLimiter(rdb, limit, func() time.Time { return *now }, sleepFn)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	return limiter
}

func mustAllow(t *testing.T, limiter *RedisRateLimiter, site string) bool {
	t.Helper()
	allowed, err := limiter.Allow(context.Background(), site)
	if err != nil {
		t.Fatalf("Allow(%s) error = %v", site, err)
	}
	return allowed
}

func TestRedisRateLimiterWindowRollover(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := newWindowLimiter(t, 2, &now, sleepWithContext)

	if !mustAllow(t, limiter, "site-1") {
		t.Fatal("first request should fit in the window")
	}
	if !mustAllow(t, limiter, "site-1") {
		t.Fatal("second request should fit in the window")
	}
	if mustAllow(t, limiter, "site-1") {
		t.Fatal("third request should exceed the window limit")
	}

	now = now.Add(time.Second)
	if !mustAllow(t, limiter, "site-1") {
		t.Fatal("next window should admit requests again")
	}
}

func TestRedisRateLimiterIsolatesSites(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_100, 0)
	limiter := newWindowLimiter(t, 1, &now, sleepWithContext)

	if !mustAllow(t, limiter, "site-a") {
		t.Fatal("site-a first request should be admitted")
	}
	if !mustAllow(t, limiter, "site-b") {
		t.Fatal("site-b budget must not be consumed by site-a")
	}
	if mustAllow(t, limiter, "site-a") {
		t.Fatal("site-a second request should be rejected")
	}
}

func TestRedisRateLimiterWaitBlocksUntilNextWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_200, 0)
	sleeps := 0
	limiter := newWindowLimiter(t, 1, &now, func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 1 {
			now = now.Add(time.Second)
		}
		return nil
	})

	if !mustAllow(t, limiter, "site-1") {
		t.Fatal("first request should be admitted")
	}
	if err := limiter.Wait(context.Background(), "site-1"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if sleeps == 0 {
		t.Fatal("Wait() should have slept before the window rolled over")
	}
}

func TestRedisRateLimiterWaitHonorsDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_300, 0)
	limiter := newWindowLimiter(t, 1, &now, sleepWithContext)

	if !mustAllow(t, limiter, "site-1") {
		t.Fatal("first request should be admitted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "site-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

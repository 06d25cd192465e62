package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bifrost-cms/bifrost/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 10
	waitPollFloor            = 10 * time.Millisecond
	waitPollCeiling          = 50 * time.Millisecond
)

// incrWithTTL counts a request inside the current one-second window and
// caps the window at the configured limit. Returns 1 when the request fits.
var incrWithTTL = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then redis.call("EXPIRE", KEYS[1], 1) end
if n > tonumber(ARGV[1]) then return 0 end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter paces outbound webhook deliveries per site using a
// fixed one-second window shared by all worker processes.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limitPerSec,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

// Allow reports whether one more delivery to siteID fits in the current
// window.
func (r *RedisRateLimiter) Allow(ctx context.Context, siteID string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	site := strings.TrimSpace(siteID)
	if site == "" {
		return false, fmt.Errorf("site id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fit, err := incrWithTTL.Run(ctx, r.client, []string{r.windowKey(site)}, r.limit).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit for site %s: %w", site, err)
	}
	return fit == 1, nil
}

// Wait blocks until a delivery slot opens for siteID or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, siteID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	poll := waitPollFloor
	for {
		ok, err := r.Allow(ctx, siteID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := r.sleep(ctx, poll); err != nil {
			return err
		}
		if poll += waitPollFloor; poll > waitPollCeiling {
			poll = waitPollCeiling
		}
	}
}

func (r *RedisRateLimiter) windowKey(site string) string {
	return fmt.Sprintf("webhook:ratelimit:%s:%d", site, r.now().UTC().Unix())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ratelimit

import "context"

// RateLimiter controls outbound webhook throughput per site, so one
// tenant's retry storm cannot starve the others.
type RateLimiter interface {
	Allow(ctx context.Context, siteID string) (bool, error)
	Wait(ctx context.Context, siteID string) error
}

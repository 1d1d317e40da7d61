package ratelimit

import "context"

// Limiter throttles outbound delivery throughput per delivery channel so the
// push gateway is never flooded during queue drains.
type Limiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

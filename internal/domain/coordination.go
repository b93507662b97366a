package domain

import (
	"context"
	"time"
)

// AuctionEvent fan-out and cross-process coordination. Every implementation
// here is optional; callers treat a nil value as "not configured".

// RateLimiter reports whether one more request under key fits in limit per
// window. Rejected calls are not counted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive, expiring leases. Acquire fails with
// ErrLockHeld while another holder's lease is live.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus is at-most-once live delivery. Subscribe accepts glob patterns.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// EventStream is the durable, replayable record of auction events.
type EventStream interface {
	Publish(ctx context.Context, ev AuctionEvent) error
}

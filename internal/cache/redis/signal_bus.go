package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

const (
	// busBuffer bounds both the go-redis delivery channel and ours.
	busBuffer = 128

	busHealthCheck = 30 * time.Second
)

// SignalBus carries live auction updates over Redis Pub/Sub. Messages sent
// while nobody listens are gone; the JetStream stream keeps the history.
type SignalBus struct {
	rdb *redis.Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish returns how the send went, not whether anyone received it.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on channel. A name containing glob metacharacters, such
// as "auction:*", becomes a pattern subscription. The returned channel is
// closed once ctx is done or the connection is torn down.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.rdb.Subscribe
	if strings.ContainsAny(channel, "*?[") {
		sub = b.rdb.PSubscribe
	}
	ps := sub(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	msgs := ps.Channel(
		redis.WithChannelSize(busBuffer),
		redis.WithChannelHealthCheckInterval(busHealthCheck),
	)
	out := make(chan []byte, busBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

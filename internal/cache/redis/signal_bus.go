package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

const subscriberBuffer = 256

// SignalBus fans events out over Redis pub/sub.
type SignalBus struct {
	rdb *redis.Client
}

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens one connection for every channel and pattern given. The
// returned channel closes when ctx is done or the connection drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, error) {
	exact, patterns := splitPatterns(channels)
	if len(exact) == 0 && len(patterns) == 0 {
		return nil, fmt.Errorf("redis: subscribe: no channels")
	}

	pubsub := sb.rdb.Subscribe(ctx)
	if len(exact) > 0 {
		if err := pubsub.Subscribe(ctx, exact...); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("redis: subscribe %s: %w", strings.Join(exact, ","), err)
		}
	}
	if len(patterns) > 0 {
		if err := pubsub.PSubscribe(ctx, patterns...); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("redis: psubscribe %s: %w", strings.Join(patterns, ","), err)
		}
	}

	out := make(chan domain.BusMessage, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// splitPatterns separates glob patterns, which need PSUBSCRIBE, from exact
// channel names.
func splitPatterns(channels []string) (exact, patterns []string) {
	for _, ch := range channels {
		if strings.ContainsAny(ch, "*?[") {
			patterns = append(patterns, ch)
		} else if ch != "" {
			exact = append(exact, ch)
		}
	}
	return exact, patterns
}

var _ domain.SignalBus = (*SignalBus)(nil)

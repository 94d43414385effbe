package bridge

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Broker is the narrow pub/sub surface the bridge needs from the shared
// coordination store. Only the bridge talks to it; every other component
// goes through Publish/DeliverLocal.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns an active subscription or an error if the broker is
	// unreachable.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one active topic subscription.
type Subscription interface {
	// Messages yields raw payloads until the subscription closes.
	Messages() <-chan []byte
	Close() error
}

// RedisBroker implements Broker over Redis pub/sub.
type RedisBroker struct {
	rdb *goredis.Client
}

func NewRedisBroker(rdb *goredis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := b.rdb.Subscribe(ctx, topic)

	// Receive forces the SUBSCRIBE round-trip so an unreachable broker is
	// detected here instead of silently yielding an idle channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return &redisSubscription{sub: sub, out: out}, nil
}

type redisSubscription struct {
	sub *goredis.PubSub
	out chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }
func (s *redisSubscription) Close() error            { return s.sub.Close() }

// Package redis carries tuple update notifications between server instances
// over Redis Pub/Sub.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const updatesChannel = "peek_user:tuple_updates"

// NewClient creates a Redis client from a URL (e.g., "redis://localhost:6379") and pings it.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Broker publishes selector keys to every subscribed server instance.
type Broker struct {
	rdb     *goredis.Client
	channel string
}

func NewBroker(rdb *goredis.Client) *Broker {
	return &Broker{rdb: rdb, channel: updatesChannel}
}

func (b *Broker) Publish(ctx context.Context, key string) error {
	return b.rdb.Publish(ctx, b.channel, key).Err()
}

// Subscribe returns a channel of selector keys. Call cancel when done.
func (b *Broker) Subscribe(ctx context.Context) (<-chan string, func(), error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no publish is missed after return
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan string, 64)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case ch <- msg.Payload:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	stop := func() {
		cancel()
		if err := sub.Close(); err != nil {
			log.Debug().Err(err).Msg("redis subscription close")
		}
	}
	return ch, stop, nil
}

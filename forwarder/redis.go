// Package forwarder republishes beacon node events to external sinks.
package forwarder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flashbots/beacon-events/beaconclient"
)

const DefaultChannelPrefix = "beacon-events:"

// RedisForwarder publishes every event payload on a Redis pub/sub channel
// named <prefix><topic>. Nothing is stored.
type RedisForwarder struct {
	log    *logrus.Entry
	client *redis.Client
	prefix string

	publishTimeout time.Duration
}

func NewRedisForwarder(redisURI, prefix string, log *logrus.Entry) (*RedisForwarder, error) {
	client := redis.NewClient(&redis.Options{Addr: redisURI})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", redisURI, err)
	}

	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisForwarder{
		log:            log.WithField("module", "forwarder/redis"),
		client:         client,
		prefix:         prefix,
		publishTimeout: 2 * time.Second,
	}, nil
}

// Channel returns the pub/sub channel used for topic.
func (f *RedisForwarder) Channel(topic beaconclient.Topic) string {
	return f.prefix + topic.String()
}

// Listener returns a beaconclient.Listener publishing to Redis.
func (f *RedisForwarder) Listener() beaconclient.Listener {
	return func(ctx context.Context, ev beaconclient.Event) error {
		ctx, cancel := context.WithTimeout(ctx, f.publishTimeout)
		defer cancel()

		channel := f.Channel(ev.Topic())
		if err := f.client.Publish(ctx, channel, ev.Payload().Raw()).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
		f.log.WithField("channel", channel).Debug("forwarded event")
		return nil
	}
}

func (f *RedisForwarder) Close() error {
	return f.client.Close()
}

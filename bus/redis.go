package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"rfq-realtime/config"
)

// redisBus uses two connections, one for publishing and one for the pattern
// subscription, matching Redis's requirement that a subscribed connection
// issues no other commands.
type redisBus struct {
	publisher  *redis.Client
	subscriber *redis.Client
}

func newRedisBus(cfg config.Redis) (*redisBus, error) {
	opts := func() *redis.Options {
		return &redis.Options{
			Addr:       cfg.Addr(),
			Password:   cfg.Password,
			DB:         cfg.DB,
			MaxRetries: 3,
		}
	}

	publisher := redis.NewClient(opts())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := publisher.Ping(ctx).Err(); err != nil {
		_ = publisher.Close()
		return nil, err
	}

	return &redisBus{
		publisher:  publisher,
		subscriber: redis.NewClient(opts()),
	}, nil
}

func (b *redisBus) Available() bool { return true }

func (b *redisBus) Publish(ctx context.Context, channel string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).WithField("channel", channel).Warn("Failed to encode bus message")
		return
	}
	if err := b.publisher.Publish(ctx, channel, data).Err(); err != nil {
		logrus.WithError(err).WithField("channel", channel).Warn("Bus publish failed")
	}
}

func (b *redisBus) PSubscribe(ctx context.Context, pattern string, handler Handler) {
	pubsub := b.subscriber.PSubscribe(ctx, pattern)

	go func() {
		for msg := range pubsub.Channel() {
			if !json.Valid([]byte(msg.Payload)) {
				logrus.WithField("channel", msg.Channel).Warn("Dropping malformed bus message")
				continue
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}()
	logrus.WithField("pattern", pattern).Info("Subscribed to bus pattern")
}

func (b *redisBus) Close() error {
	if err := b.subscriber.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close bus subscriber")
	}
	return b.publisher.Close()
}

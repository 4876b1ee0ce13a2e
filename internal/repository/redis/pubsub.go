package redis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const pubsubPrefix = "watchparty:"

type pubsub struct {
	rc     *redis.Client
	logger *slog.Logger
}

// NewPubSub returns a realtime transport that carries broadcasts between
// server processes over redis PUBLISH/PSUBSCRIBE.
func NewPubSub(rc *redis.Client, logger *slog.Logger) *pubsub {
	return &pubsub{
		rc:     rc,
		logger: logger,
	}
}

func (p pubsub) Publish(ctx context.Context, channel string, msg []byte) error {
	if err := p.rc.Publish(ctx, pubsubPrefix+channel, msg).Err(); err != nil {
		p.logger.DebugContext(ctx, "failed to publish", "channel", channel, "error", err)
		return err
	}

	return nil
}

// Run delivers every message published on any channel until ctx is done.
func (p pubsub) Run(ctx context.Context, ready func(), deliver func(channel string, msg []byte)) error {
	sub := p.rc.PSubscribe(ctx, escapeGlob(pubsubPrefix)+"*")
	defer sub.Close()

	// wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		ready()
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(strings.TrimPrefix(m.Channel, pubsubPrefix), []byte(m.Payload))
		}
	}
}

// Package bus wraps the shared publish/subscribe channel that lets multiple
// gateway instances relay room events to each other. When Redis is disabled
// or unreachable at startup the process runs with a permanently disabled bus
// and delivery stays local-process-only.
package bus

import (
	"context"

	"github.com/sirupsen/logrus"

	"rfq-realtime/config"
)

// Handler receives the raw payload of a message published on a matching
// channel. Payloads are JSON; malformed ones are dropped before the handler
// runs.
type Handler func(channel string, payload []byte)

// Bus is the distribution bus adapter. Publish on an unavailable bus is a
// silent no-op: callers must never block or fail on this path.
type Bus interface {
	// Available reports whether cross-process distribution is enabled. The
	// verdict is fixed at startup for the process lifetime.
	Available() bool

	// Publish serializes message to JSON and publishes it on channel.
	Publish(ctx context.Context, channel string, message any)

	// PSubscribe registers handler for every message whose channel matches
	// pattern (glob style, e.g. "message:*").
	PSubscribe(ctx context.Context, pattern string, handler Handler)

	// Close tears down the underlying connections.
	Close() error
}

// New probes the configured Redis instance once and returns either a live
// redis bus or the disabled no-op.
func New(cfg *config.Config) Bus {
	if !cfg.Redis.Enabled {
		logrus.Warn("Distribution bus disabled - running in single-process mode")
		return Disabled()
	}

	b, err := newRedisBus(cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("Distribution bus unreachable, running in single-process mode")
		return Disabled()
	}
	logrus.WithField("addr", cfg.Redis.Addr()).Info("Distribution bus connected")
	return b
}

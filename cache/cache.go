package cache

import (
	"time"

	"github.com/sirupsen/logrus"

	"rfq-realtime/cache/memory"
	"rfq-realtime/cache/redis"
	"rfq-realtime/cache/sqlite"
	"rfq-realtime/config"
	"rfq-realtime/core"
)

// New selects the cache backing. When Redis is enabled and reachable all
// operations delegate to it exclusively (no dual-write with a local map);
// otherwise the configured local backing is used for the process lifetime.
func New(cfg *config.Config) core.Cache {
	if cfg.Redis.Enabled {
		c, err := redis.NewCache(cfg.Redis)
		if err == nil {
			logrus.WithField("addr", cfg.Redis.Addr()).Info("Using redis cache backing")
			return c
		}
		logrus.WithError(err).Warn("Redis unreachable, falling back to local cache backing")
	}

	switch cfg.Cache.Backend {
	case "sqlite":
		c, err := sqlite.NewCache(cfg.Cache.SQLitePath)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open sqlite cache")
		}
		logrus.WithField("path", cfg.Cache.SQLitePath).Info("Using sqlite cache backing")
		return c
	default:
		logrus.Info("Using in-memory cache backing")
		return memory.NewCache(time.Minute)
	}
}

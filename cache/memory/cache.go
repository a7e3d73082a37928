package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memCache is the in-process cache backing. Expired entries are reclaimed
// lazily on Get and by a background sweep so entries that are never re-read
// do not accumulate.
type memCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
}

// NewCache creates an in-memory cache whose sweep runs every sweepInterval.
func NewCache(sweepInterval time.Duration) *memCache {
	c := &memCache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

func (c *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to encode cache value")
		return
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	logrus.WithField("key", key).Debug("Cached in memory")
}

func (c *memCache) Get(ctx context.Context, key string, dest any) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false
	}

	if err := json.Unmarshal(e.data, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to decode cache value")
		return false
	}
	return true
}

func (c *memCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *memCache) Keys(ctx context.Context, prefix string) []string {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0)
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *memCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memCache) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.entries = make(map[string]entry)
		c.mu.Unlock()
	})
	return nil
}

func (c *memCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			cleaned := 0
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
					cleaned++
				}
			}
			c.mu.Unlock()
			if cleaned > 0 {
				logrus.WithField("count", cleaned).Debug("Swept expired cache entries")
			}
		}
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// sqliteCache is a local cache backing that survives process restarts.
// Expiry instants are stored as unix milliseconds; a zero expiry means the
// entry never expires.
type sqliteCache struct {
	db   *sql.DB
	done chan struct{}
	once sync.Once
}

// NewCache opens (or creates) the cache database at path.
func NewCache(path string) (*sqliteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	stmt := `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := db.Exec(stmt); err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &sqliteCache{db: db, done: make(chan struct{})}
	go c.sweep(time.Minute)
	return c, nil
}

func (c *sqliteCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to encode cache value")
		return
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, data, expiresAt)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Sqlite set failed")
	}
}

func (c *sqliteCache) Get(ctx context.Context, key string, dest any) bool {
	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&data, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logrus.WithError(err).WithField("key", key).Warn("Sqlite get failed")
		}
		return false
	}

	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		c.Delete(ctx, key)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to decode cache value")
		return false
	}
	return true
}

func (c *sqliteCache) Delete(ctx context.Context, key string) {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Sqlite delete failed")
	}
}

func (c *sqliteCache) Keys(ctx context.Context, prefix string) []string {
	keys := make([]string, 0)
	rows, err := c.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE key LIKE ? || '%' AND (expires_at = 0 OR expires_at > ?)",
		prefix, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).WithField("prefix", prefix).Warn("Sqlite keys failed")
		return keys
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			logrus.WithError(err).Warn("Sqlite keys scan failed")
			return keys
		}
		keys = append(keys, k)
	}
	return keys
}

func (c *sqliteCache) Size() int {
	var n int
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM kv WHERE expires_at = 0 OR expires_at > ?",
		time.Now().UnixMilli()).Scan(&n)
	if err != nil {
		logrus.WithError(err).Warn("Sqlite size failed")
		return 0
	}
	return n
}

func (c *sqliteCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.db.Close()
}

func (c *sqliteCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			res, err := c.db.Exec("DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?", now.UnixMilli())
			if err != nil {
				logrus.WithError(err).Warn("Sqlite sweep failed")
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				logrus.WithField("count", n).Debug("Swept expired cache entries")
			}
		}
	}
}

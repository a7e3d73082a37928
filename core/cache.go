package core

import (
	"context"
	"time"
)

// Cache is the TTL-bounded key/value store used for credential verdicts and
// room membership records. A zero ttl means the entry never expires.
//
// Implementations degrade instead of failing: an unreachable backing reads as
// "entry not found" on Get and is a silent no-op on Set and Delete. Errors are
// logged by the implementation, never returned.
type Cache interface {
	// Set stores value (JSON-encoded) under key for at most ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration)

	// Get unmarshals the value under key into dest and reports whether a
	// live (non-expired) entry was found.
	Get(ctx context.Context, key string, dest any) bool

	// Delete removes the entry under key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string)

	// Keys returns all live keys starting with prefix. Best effort: an
	// unreachable backing returns an empty slice.
	Keys(ctx context.Context, prefix string) []string

	// Size returns the number of entries currently held, for observability.
	Size() int

	// Close releases the backing. Local backings drop their entries; a
	// shared backing persists independently across restarts.
	Close() error
}

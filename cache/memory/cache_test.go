package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	type member struct {
		Name string `json:"name"`
		ID   int64  `json:"id"`
	}

	c.Set(ctx, "k1", member{Name: "alice", ID: 7}, time.Second)

	var got member
	require.True(t, c.Get(ctx, "k1", &got))
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, int64(7), got.ID)
}

func TestGetAfterTTLReturnsAbsent(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", "v", 30*time.Millisecond)

	var got string
	require.True(t, c.Get(ctx, "k1", &got), "read before TTL elapses must return the value")
	assert.Equal(t, "v", got)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Get(ctx, "k1", &got), "read after TTL elapses must return absent")
	assert.Equal(t, 0, c.Size(), "lazy expiry must reclaim the entry")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", "v", 0)
	time.Sleep(20 * time.Millisecond)

	var got string
	assert.True(t, c.Get(ctx, "k1", &got))
}

func TestDelete(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", "v", 0)
	c.Delete(ctx, "k1")

	var got string
	assert.False(t, c.Get(ctx, "k1", &got))

	// Deleting a missing key is a no-op.
	c.Delete(ctx, "k1")
}

func TestKeysPrefixScan(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "room:r1:member:a", 1, 0)
	c.Set(ctx, "room:r1:member:b", 2, 0)
	c.Set(ctx, "room:r2:member:c", 3, 0)
	c.Set(ctx, "room:r1:member:expired", 4, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	keys := c.Keys(ctx, "room:r1:member:")
	assert.ElementsMatch(t, []string{"room:r1:member:a", "room:r1:member:b"}, keys)
}

func TestBackgroundSweepBoundsGrowth(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Set(ctx, string(rune('a'+i)), i, 10*time.Millisecond)
	}

	// Entries are never re-read; only the sweep can reclaim them.
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewCache(time.Minute)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

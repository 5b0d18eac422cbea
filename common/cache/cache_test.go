package cache

import (
	"context"
	"testing"
	"time"

	"github.com/lyzr/materials/common/logger"
	rediscommon "github.com/lyzr/materials/common/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*MemoryCache, *time.Time) {
	t.Helper()
	c := NewMemoryCache(logger.Discard())
	t.Cleanup(func() { _ = c.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, rediscommon.ErrKeyNotFound)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, now := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetWithExpiry(ctx, "k", "v", time.Second))
	require.NoError(t, c.SetWithExpiry(ctx, "forever", "v", 0))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	*now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, rediscommon.ErrKeyNotFound)
	assert.Equal(t, 1, c.Len())

	c.evict()
	c.mu.RLock()
	assert.Len(t, c.data, 1)
	c.mu.RUnlock()
}

func TestMemoryCache_SetNXAndConditionalDelete(t *testing.T) {
	c, now := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := c.DeleteIfValue(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = c.DeleteIfValue(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = c.SetNX(ctx, "lock", "c", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	ok, err = c.SetNX(ctx, "lock", "d", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired markers can be reacquired")
}

func TestMemoryCache_SetAndPublishAndDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetAndPublish(ctx, "k", "v", time.Minute, "chan"))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k", "other"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, rediscommon.ErrKeyNotFound)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(logger.Discard())
	require.NoError(t, c.SetWithExpiry(context.Background(), "k", "v", 0))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client)
}

func TestCache_SetGet_RoundTrips(t *testing.T) {
	c := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "pricing-snapshot", []byte(`{"a":1}`), time.Minute))

	val, ok, err := c.Get(ctx, "pricing-snapshot")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(val))
}

func TestCache_Get_MissReturnsFalse(t *testing.T) {
	c := setupMiniredis(t)
	_, ok, err := c.Get(context.Background(), "missing-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_NilReceiver_IsAlwaysMiss(t *testing.T) {
	var c *Cache
	assert.False(t, c.Enabled())

	_, ok, err := c.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(context.Background(), "anything", []byte("x"), time.Minute))
	require.NoError(t, c.Close())
}

func TestNew_EmptyAddrReturnsNilCacheNoError(t *testing.T) {
	c, err := New("", "", 0)
	require.NoError(t, err)
	assert.Nil(t, c)
}

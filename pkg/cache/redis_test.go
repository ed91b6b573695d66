package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(mr.Addr(), 0, "", time.Minute)
	require.NoError(t, err)
	return c, mr
}

func TestRedisCacheSetGet(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("raw"), time.Minute))
	data, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	require.NoError(t, c.Set(ctx, "k2", map[string]string{"a": "b"}, time.Minute))
	data, err = c.Get(ctx, "k2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(data))
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newRedisCache(t)

	_, err := c.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Second))

	mr.FastForward(11 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestRedisCacheDelete(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.True(t, IsNotFound(err))

	assert.NoError(t, c.Delete(ctx), "deleting nothing is a no-op")
}

func TestRedisCacheConnectFailure(t *testing.T) {
	_, err := NewRedis("127.0.0.1:1", 0, "", time.Minute)
	assert.Error(t, err)
}

func TestRedisCacheHealthCheck(t *testing.T) {
	c, mr := newRedisCache(t)
	assert.NoError(t, c.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}

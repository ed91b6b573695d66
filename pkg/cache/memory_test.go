package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemory(16, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("raw"), time.Minute))
	data, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	require.NoError(t, c.Set(ctx, "k2", "stringy", time.Minute))
	data, err = c.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, []byte("stringy"), data)

	require.NoError(t, c.Set(ctx, "k3", map[string]int{"n": 7}, time.Minute))
	data, err = c.Get(ctx, "k3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":7}`, string(data))
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemory(16, time.Minute)

	_, err := c.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryCachePerEntryTTL(t *testing.T) {
	c := NewMemory(16, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Minute))

	time.Sleep(40 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.True(t, IsNotFound(err))
	_, err = c.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemory(16, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Delete(ctx, "a", "b", "never-existed"))

	_, err := c.Get(ctx, "a")
	assert.True(t, IsNotFound(err))
	_, err = c.Get(ctx, "b")
	assert.True(t, IsNotFound(err))
}

func TestMemoryCacheEvictsAtCapacity(t *testing.T) {
	c := NewMemory(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, err := c.Get(ctx, "a")
	assert.True(t, IsNotFound(err), "oldest entry is evicted")
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryCacheHealthCheck(t *testing.T) {
	c := NewMemory(16, time.Minute)
	assert.NoError(t, c.HealthCheck(context.Background()))
}

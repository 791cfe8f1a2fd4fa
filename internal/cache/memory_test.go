package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(8, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "u1", items()))
	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got[0].Quantity = 99
	again, _ := c.Get(ctx, "u1")
	assert.Equal(t, 2, again[0].Quantity)

	require.NoError(t, c.Delete(ctx, "u1"))
	_, err = c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_EmptyCartIsAHit(t *testing.T) {
	c := NewMemoryCache(8, time.Minute)

	require.NoError(t, c.Set(context.Background(), "u1", nil))
	got, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(8, 30*time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "u1", items()))

	require.Eventually(t, func() bool {
		_, err := c.Get(context.Background(), "u1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

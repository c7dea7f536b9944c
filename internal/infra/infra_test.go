package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	c.Set("robots:example.com", []string{"/private"})

	got, ok := c.Get("robots:example.com")
	require.True(t, ok)
	assert.Equal(t, []string{"/private"}, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("robots:example.com")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestCacheSetOverwrites(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", 1)
	c.Set("k", 2)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestRateLimiterBurstThenPace(t *testing.T) {
	rl := NewRateLimiter(2, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "initial burst must not block")

	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "third call waits for a refill")
}

func TestRateLimiterHonorsCancellation(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

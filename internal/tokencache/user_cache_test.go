package tokencache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserCache() (*UserCache, *clock) {
	clk := newClock()
	c := NewUserCache()
	c.now = clk.Now
	return c, clk
}

func TestUserCache_KeyedByAppAndUser(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestUserCache()

	require.NoError(t, c.Save(ctx, "app1", "u1", "t-a1-u1", time.Hour, time.Time{}))
	require.NoError(t, c.Save(ctx, "app2", "u1", "t-a2-u1", time.Hour, time.Time{}))

	token, ok, err := c.Get(ctx, "app1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t-a1-u1", token)

	token, ok, err = c.Get(ctx, "app2", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t-a2-u1", token)

	_, ok, err = c.Get(ctx, "app1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserCache_IndependentExpiry(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestUserCache()

	require.NoError(t, c.Save(ctx, "app", "short", "s", 5*time.Second, time.Time{}))
	require.NoError(t, c.Save(ctx, "app", "long", "l", time.Minute, time.Time{}))
	clk.Advance(10 * time.Second)

	_, ok, err := c.Get(ctx, "app", "short")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotContains(t, c.apps["app"], "short")

	token, ok, err := c.Get(ctx, "app", "long")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "l", token)
}

func TestUserCache_RefreshKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestUserCache()
	created := clk.Now()

	require.NoError(t, c.Save(ctx, "app", "u", "tok", 10*time.Second, time.Time{}))
	clk.Advance(9 * time.Second)
	require.NoError(t, c.Refresh(ctx, "app", "u", 10*time.Second))
	clk.Advance(9 * time.Second)

	_, ok, err := c.Get(ctx, "app", "u")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, created, c.apps["app"]["u"].createdAt)

	require.NoError(t, c.Refresh(ctx, "other", "u", time.Second))
	assert.NotContains(t, c.apps, "other")
}

func TestUserCache_Clean(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestUserCache()

	require.NoError(t, c.Save(ctx, "app1", "u", "1", time.Hour, time.Time{}))
	require.NoError(t, c.Save(ctx, "app2", "u", "2", time.Hour, time.Time{}))

	require.NoError(t, c.Clean(ctx, "app1"))
	_, ok, _ := c.Get(ctx, "app1", "u")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "app2", "u")
	assert.True(t, ok)

	require.NoError(t, c.CleanAll(ctx))
	_, ok, _ = c.Get(ctx, "app2", "u")
	assert.False(t, ok)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/policy-summarizer/internal/config"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	c, err := InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSetAndGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	expiresAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	expected := models.Profile{ID: "u1", Name: "Alice", Email: "a@example.com", IsSubscribed: true, SubscriptionExpiresAt: &expiresAt}
	require.NoError(t, c.Set(ctx, UserKey("u1"), expected, time.Minute))

	var actual models.Profile
	found, err := c.Get(ctx, UserKey("u1"), &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected.Name, actual.Name)
	assert.True(t, expiresAt.Equal(*actual.SubscriptionExpiresAt))
}

func TestGetNotFound(t *testing.T) {
	c, _ := setupTestCache(t)

	var out models.Profile
	found, err := c.Get(context.Background(), "no_such_key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiration(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Second))
	mr.FastForward(2 * time.Second)

	var out map[string]int
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, UserKey("u2"), "v", time.Minute))
	require.NoError(t, c.Invalidate(ctx, UserKey("u2")))

	var out string
	found, err := c.Get(ctx, UserKey("u2"), &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetCorruptedValue(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, mr.Set("bad", "{not json"))

	var out models.Profile
	_, err := c.Get(context.Background(), "bad", &out)
	assert.Error(t, err)
}

func TestSetUnmarshalable(t *testing.T) {
	c, _ := setupTestCache(t)
	err := c.Set(context.Background(), "ch", make(chan int), time.Minute)
	assert.Error(t, err)
}

func TestInitServer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := InitServer(ctx, config.RedisConnection{AddressRedis: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

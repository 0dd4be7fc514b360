package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedis emulates SET NX and DEL on a map
type fakeRedis struct {
	keys map[string]bool
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func TestRedisClaimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rdb := &fakeRedis{keys: map[string]bool{}}
	c := NewRedisClaimer(rdb)

	ok, err := c.Claim(ctx, "n1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rdb.keys["artx:notify:n1"])

	ok, err = c.Claim(ctx, "n1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Release(ctx, "n1"))
	ok, err = c.Claim(ctx, "n1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisClaimer_Error(t *testing.T) {
	t.Parallel()

	c := NewRedisClaimer(&fakeRedis{keys: map[string]bool{}, err: errors.New("connection refused")})
	ok, err := c.Claim(context.Background(), "n1", time.Minute)
	require.Error(t, err)
	require.False(t, ok)
}

func TestMemoryClaimer_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryClaimer()
	c.now = func() time.Time { return now }

	ok, _ := c.Claim(context.Background(), "n1", time.Minute)
	require.True(t, ok)
	ok, _ = c.Claim(context.Background(), "n1", time.Minute)
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = c.Claim(context.Background(), "n1", time.Minute)
	require.True(t, ok)
}

func TestMemoryClaimer_PrunesExpiredClaims(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryClaimer()
	c.now = func() time.Time { return now }

	for _, key := range []string{"n1", "n2", "n3"} {
		ok, err := c.Claim(ctx, key, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Len(t, c.claims, 3)

	now = now.Add(2 * time.Minute)
	ok, err := c.Claim(ctx, "n4", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, c.claims, 1)
	require.Contains(t, c.claims, "n4")
}

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ratelimit"
)

func TestLimiter_FixedWindow(t *testing.T) {
	rs, l := makeLimiter(t, map[string]ratelimit.ActionConfig{
		"join": {Window: 60 * time.Second, Quota: 5},
	})

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := l.Consume(ctx, "join", "u1")
		require.True(t, res.Allowed, "call %d within quota should be allowed", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res := l.Consume(ctx, "join", "u1")
	assert.False(t, res.Allowed, "6th call within the window should be denied")

	// A fresh window admits again.
	rs.FastForward(61 * time.Second)
	assert.True(t, l.Consume(ctx, "join", "u1").Allowed)
}

func TestLimiter_QuotaIsPerUser(t *testing.T) {
	_, l := makeLimiter(t, map[string]ratelimit.ActionConfig{
		"answer": {Window: time.Second, Quota: 1},
	})

	ctx := context.Background()

	require.True(t, l.Consume(ctx, "answer", "u1").Allowed)
	require.False(t, l.Consume(ctx, "answer", "u1").Allowed)
	assert.True(t, l.Consume(ctx, "answer", "u2").Allowed, "u2 has its own counter")
}

func TestLimiter_Cooldown(t *testing.T) {
	rs, l := makeLimiter(t, map[string]ratelimit.ActionConfig{
		"join": {Window: time.Minute, Quota: 1, BlockFor: 5 * time.Minute},
	})

	ctx := context.Background()

	require.False(t, l.IsBlocked(ctx, "join", "u1"))
	require.True(t, l.Consume(ctx, "join", "u1").Allowed)
	require.False(t, l.Consume(ctx, "join", "u1").Allowed)

	assert.True(t, l.IsBlocked(ctx, "join", "u1"), "exceeding quota starts a cooldown")

	rs.FastForward(5*time.Minute + time.Second)
	assert.False(t, l.IsBlocked(ctx, "join", "u1"))
}

func TestLimiter_UnknownActionIsUnlimited(t *testing.T) {
	_, l := makeLimiter(t, nil)

	assert.True(t, l.Consume(context.Background(), "whatever", "u1").Allowed)
}

func TestLimiter_FailsOpenOnStoreFailure(t *testing.T) {
	rs, l := makeLimiter(t, map[string]ratelimit.ActionConfig{
		"join": {Window: time.Minute, Quota: 1},
	})

	rs.Close()

	res := l.Consume(context.Background(), "join", "u1")
	assert.True(t, res.Allowed, "limiter must fail open when the store is unavailable")
	assert.False(t, l.IsBlocked(context.Background(), "join", "u1"))
}

func makeLimiter(t *testing.T, actions map[string]ratelimit.ActionConfig) (*miniredis.Miniredis, *ratelimit.Limiter) {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	l := ratelimit.New(ratelimit.Config{
		Redis:   rc,
		Prefix:  "test",
		Actions: actions,
	})

	return rs, l
}

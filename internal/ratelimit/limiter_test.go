package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-licensing/internal/ratelimit"
)

func setup(t *testing.T) (*miniredis.Miniredis, *ratelimit.Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, ratelimit.NewLimiter(client, "test-salt")
}

func TestCheckRateLimit_WindowExhaustion(t *testing.T) {
	mr, l := setup(t)
	cfg := ratelimit.LimitConfig{Rate: 2, Window: time.Minute}
	key := ratelimit.Key(ratelimit.ScopeBrand, "acme")
	ctx := context.Background()

	d, err := l.CheckRateLimit(ctx, ratelimit.ScopeBrand, key, cfg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = l.CheckRateLimit(ctx, ratelimit.ScopeBrand, key, cfg)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = l.CheckRateLimit(ctx, ratelimit.ScopeBrand, key, cfg)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ScopeBrand, d.Scope)
	assert.Equal(t, 60, d.RetryAfter)

	mr.FastForward(time.Minute + time.Second)
	d, _ = l.CheckRateLimit(ctx, ratelimit.ScopeBrand, key, cfg)
	assert.True(t, d.Allowed, "new window after expiry")
}

func TestCheckRateLimit_KeysAreIndependent(t *testing.T) {
	_, l := setup(t)
	cfg := ratelimit.LimitConfig{Rate: 1, Window: time.Minute}
	ctx := context.Background()

	d, _ := l.CheckRateLimit(ctx, ratelimit.ScopePublicIP, ratelimit.Key(ratelimit.ScopePublicIP, l.HashIP("10.0.0.1")), cfg)
	assert.True(t, d.Allowed)
	d, _ = l.CheckRateLimit(ctx, ratelimit.ScopePublicIP, ratelimit.Key(ratelimit.ScopePublicIP, l.HashIP("10.0.0.2")), cfg)
	assert.True(t, d.Allowed)
}

func TestCheckRateLimit_RedisDown(t *testing.T) {
	mr, l := setup(t)
	mr.Close()

	_, err := l.CheckRateLimit(context.Background(), ratelimit.ScopeBrand, "rl:brand:x", ratelimit.LimitConfig{Rate: 1, Window: time.Second})
	assert.ErrorIs(t, err, ratelimit.ErrRedisUnavailable)
}

func TestHashIP(t *testing.T) {
	_, l := setup(t)
	assert.Equal(t, l.HashIP("1.2.3.4"), l.HashIP("1.2.3.4"))
	assert.NotEqual(t, l.HashIP("1.2.3.4"), l.HashIP("1.2.3.5"))
	assert.NotContains(t, l.HashIP("1.2.3.4"), "1.2.3.4")
}

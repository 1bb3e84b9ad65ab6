package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, nil), mr
}

func TestAllow_WithinLimit(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "7", rule)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := l.Allow(ctx, "7", rule)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 10*time.Second, mr.TTL("test:7"))
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test:", Limit: 1, Window: time.Second}

	ok, _ := l.Allow(ctx, "7", rule)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "7", rule)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err := l.Allow(ctx, "7", rule)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_SeparateIdentifiers(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test:", Limit: 1, Window: time.Minute}

	ok, _ := l.Allow(ctx, "1", rule)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "2", rule)
	assert.True(t, ok)
}

func TestAllow_FailsOpen(t *testing.T) {
	l, mr := setupLimiter(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "7", RuleAction)
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestRemaining(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()

	n, err := l.Remaining(ctx, "7", RuleAction)
	require.NoError(t, err)
	assert.Equal(t, RuleAction.Limit, n)

	for i := 0; i < 5; i++ {
		_, _ = l.Allow(ctx, "7", RuleAction)
	}
	n, err = l.Remaining(ctx, "7", RuleAction)
	require.NoError(t, err)
	assert.Equal(t, RuleAction.Limit-5, n)
}

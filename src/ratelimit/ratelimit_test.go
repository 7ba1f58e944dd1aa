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

func TestParseRate(t *testing.T) {
	for input, expected := range map[string]Rate{
		"10/m":  {Limit: 10, Window: time.Minute},
		"3/s":   {Limit: 3, Window: time.Second},
		" 1/h ": {Limit: 1, Window: time.Hour},
		"50/d":  {Limit: 50, Window: 24 * time.Hour},
	} {
		t.Run(input, func(t *testing.T) {
			rate, err := ParseRate(input)
			require.Nil(t, err)
			assert.Equal(t, expected, rate)
		})
	}

	for _, bad := range []string{"", "10", "10/y", "x/m", "0/m", "-1/m"} {
		t.Run("bad "+bad, func(t *testing.T) {
			_, err := ParseRate(bad)
			assert.NotNil(t, err)
		})
	}

	assert.Equal(t, "10/m", MustParseRate("10/m").String())
	assert.Panics(t, func() { MustParseRate("lots") })
}

func TestInMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	l := NewInMemory()
	l.now = func() time.Time { return now }

	rate := MustParseRate("2/m")
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed)
	d := l.Allow(ctx, "user:1", rate)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = l.Allow(ctx, "user:1", rate)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Count)
	assert.Equal(t, now.Add(time.Minute), d.ResetAt)

	assert.True(t, l.Allow(ctx, "user:2", rate).Allowed, "keys are independent")

	now = now.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed, "window should have reset")
}

func TestRedisLimiter(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	l := NewRedis(client)
	rate := MustParseRate("2/m")
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed)
	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed)
	d := l.Allow(ctx, "user:1", rate)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Count)

	s.FastForward(time.Minute + time.Second)
	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed)
}

func TestRedisLimiterFallsBack(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	l := NewRedis(client)
	rate := MustParseRate("1/m")
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "user:1", rate).Allowed)
	assert.False(t, l.Allow(ctx, "user:1", rate).Allowed, "fallback should still count")
}

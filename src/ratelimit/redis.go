package ratelimit

import (
	"context"
	"time"

	"git.handmade.network/hmn/forum/src/logging"
	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares counts between server processes. If redis is down it
// falls back to counting in memory instead of letting everything through.
type RedisLimiter struct {
	Client   redis.Cmdable
	Prefix   string
	Fallback *InMemoryLimiter
}

var _ Limiter = &RedisLimiter{}

func NewRedis(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{
		Client:   client,
		Prefix:   "rl:",
		Fallback: NewInMemory(),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rate Rate) Decision {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	redisKey := l.Prefix + rate.String() + ":" + key
	res, err := rateLimitScript.Run(ctx, l.Client, []string{redisKey}, rate.Window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		logging.ExtractLogger(ctx).Warn().Err(err).Str("key", key).Msg("redis rate limit failed, counting in memory")
		return l.Fallback.Allow(ctx, key, rate)
	}

	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = rate.Window.Milliseconds()
	}
	return decide(int(count), rate, time.Now().UTC().Add(time.Duration(ttlMs)*time.Millisecond))
}

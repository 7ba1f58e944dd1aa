package idempotency

import (
	"context"
	"errors"
	"time"

	"git.handmade.network/hmn/forum/src/oops"
	"github.com/redis/go-redis/v9"
)

type RedisGuard struct {
	Client redis.Cmdable
	Window time.Duration
}

var _ Guard = &RedisGuard{}

func NewRedisGuard(client redis.Cmdable, window time.Duration) *RedisGuard {
	return &RedisGuard{Client: client, Window: window}
}

// SET ... GET writes the new hash and returns the old one in a single
// command, so two concurrent submissions cannot both see "not seen before".
func (g *RedisGuard) CheckAndRecord(ctx context.Context, userID int, ns Namespace, hash string) (bool, error) {
	prev, err := g.Client.SetArgs(ctx, key(userID, ns), hash, redis.SetArgs{
		Get: true,
		TTL: g.Window,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, oops.New(err, "failed to record post hash")
	}
	return prev == hash, nil
}

var forgetScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *RedisGuard) Forget(ctx context.Context, userID int, ns Namespace, hash string) error {
	err := forgetScript.Run(ctx, g.Client, []string{key(userID, ns)}, hash).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return oops.New(err, "failed to forget post hash")
	}
	return nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"rentguru/internal/app/policies"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a SET NX lock with a lease. The lease bounds how long a crashed
// holder blocks others.
type Locker struct {
	client *goredis.Client
	TTL    time.Duration
	Retry  time.Duration
}

func NewLocker(client *goredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, TTL: ttl, Retry: 25 * time.Millisecond}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + "lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", policies.ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.Retry):
		}
	}
}

var _ policies.Locker = (*Locker)(nil)

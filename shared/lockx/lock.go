package lockx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

var ErrNotAcquired = errors.New("lock held by another process")

type Lock struct {
	Key   string
	Token string
	TTL   time.Duration
}

func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, bool, error) {
	if client == nil {
		return nil, false, errors.New("redis client not initialized")
	}
	if ttl <= 0 {
		return nil, false, errors.New("ttl must be > 0")
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{Key: key, Token: token, TTL: ttl}, true, nil
}

// Release deletes the key only if it still holds this lock's token.
func Release(ctx context.Context, client *redis.Client, lock *Lock) error {
	if client == nil {
		return errors.New("redis client not initialized")
	}
	if lock == nil {
		return errors.New("lock is nil")
	}
	return client.Eval(ctx, releaseScript, []string{lock.Key}, lock.Token).Err()
}

// WithLock polls for the lock until ctx is done, runs fn while holding it and
// releases it afterwards. fn must finish within ttl.
func WithLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration, poll time.Duration, fn func(context.Context) error) error {
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	for {
		lock, ok, err := Acquire(ctx, client, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			defer func() { _ = Release(context.WithoutCancel(ctx), client, lock) }()
			return fn(ctx)
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(poll):
		}
	}
}

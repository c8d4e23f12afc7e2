package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockFailed is returned when the Redis lock could not be acquired in time.
var ErrLockFailed = errors.New("lock: could not acquire distributed lock")

// unlockScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot release the next holder's lock.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Redis is a SET NX EX lock on a single key.
type Redis struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedis builds a lock on key. ttl bounds how long a crashed holder blocks others.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, key: key, ttl: ttl, retryEvery: 25 * time.Millisecond}
}

// Dial parses a redis:// URL and verifies connectivity.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lock retries SETNX until it succeeds, ctx is done, or the TTL has elapsed.
func (l *Redis) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release with a fresh context: the caller's may already be cancelled
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = l.client.Eval(rctx, unlockScript, []string{l.key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockFailed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

// Package lock serializes sync runs across processes.
//
// The Redis lock is a single key set with NX and a TTL. The value is a random
// token so only the holder can release it.
//
// Redis Key Structure:
//
//	eproc:sync:lock - token of the process currently running a sync (expires with TTL)
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey = "eproc:sync:lock"
	DefaultTTL = 3 * time.Hour
)

// ErrNotAcquired is returned when another process holds the lock.
var ErrNotAcquired = errors.New("sync lock held by another process")

// Locker hands out leases on the sync lock.
type Locker interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker backed by one Redis key.
type RedisLock struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisLock creates a lock on key. Zero values take the defaults.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLock{redis: client, key: key, ttl: ttl}
}

// Connect parses redisURL, pings the server and returns the client.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Acquire takes the lock or returns ErrNotAcquired.
func (l *RedisLock) Acquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLease{lock: l, token: token}, nil
}

// Holder returns the token of the current holder, or "" when free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	token, err := l.redis.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

type redisLease struct {
	lock  *RedisLock
	token string
}

// Release deletes the key if this lease still owns it. An expired lease is a no-op.
func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.lock.redis, []string{r.lock.key}, r.token).Err(); err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	return nil
}

// Noop always grants the lock. Used when Redis is disabled.
type Noop struct{}

func (Noop) Acquire(ctx context.Context) (Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(ctx context.Context) error { return nil }

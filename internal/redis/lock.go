package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("serial lock not acquired")
)

// Locker guards critical sections per inventory serial. Two API instances
// racing to reserve the same device pass through here before touching the
// database row.
type Locker interface {
	WithSerialLock(ctx context.Context, serialNumber string, fn func(ctx context.Context) error) error
}

type redisSerialLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSerialLocker creates a locker that uses a per serial Redis key
func NewRedisSerialLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSerialLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSerialLocker) WithSerialLock(ctx context.Context, serialNumber string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:serial:%s", serialNumber)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire serial lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSerialLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release serial lock: %w", err)
	}
	return nil
}

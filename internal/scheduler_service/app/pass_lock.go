package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPassLockKey is the Redis key shared by all replicas.
const DefaultPassLockKey = "rentwatch:scheduler:pass"

// Deletes the key only while it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisPassLock is a PassLock held with SET NX PX. The TTL bounds how long a crashed
// holder blocks other replicas.
type RedisPassLock struct {
	client redisLocker
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisPassLock(client redisLocker, key string, ttl time.Duration, logger *slog.Logger) *RedisPassLock {
	if key == "" {
		key = DefaultPassLockKey
	}
	return &RedisPassLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "pass_lock"),
	}
}

func (l *RedisPassLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire pass lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(relCtx, releaseScript, []string{l.key}, token).Err(); err != nil {
			l.logger.WarnContext(relCtx, "Failed to release pass lock", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}

/*
Package lock provides a Redis-backed schedule.ActivityLocker.

PURPOSE:
  ApplyTemplate, CreateSchedule and DeleteSchedule take a per-activity lock so
  two agents cannot resolve the same booking concurrently. The in-process
  schedule.MemoryLocker only covers one server; this one covers a fleet.

PROTOCOL:
  TryLock:  SET key token NX PX ttl   (token is a fresh UUID)
  Unlock:   Lua compare-and-delete, so an expired lock re-acquired by
            another request is never released by the original holder.
*/
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/schedule"
)

const keyPrefix = "payment-engine:lock:"

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements schedule.ActivityLocker.
type RedisLocker struct {
	client redis.Cmdable
	log    *zap.Logger
}

var _ schedule.ActivityLocker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.Cmdable, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, log: logger}
}

// NewRedisClient opens a client and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		l.log.Error("RedisLocker.TryLock failed", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if !acquired {
		l.log.Info("RedisLocker.TryLock not acquired", zap.String("key", key))
		return "", false, nil
	}
	l.log.Debug("RedisLocker.TryLock acquired", zap.String("key", key), zap.Duration("ttl", ttl))
	return token, true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	released, err := unlockScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Int()
	if err != nil {
		l.log.Error("RedisLocker.Unlock failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	if released == 0 {
		l.log.Warn("RedisLocker.Unlock lock expired or owned by another request", zap.String("key", key))
	}
	return nil
}

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisLocker_TryLockSurfacesConnectionErrors(t *testing.T) {
	// GIVEN: Redis is down
	// WHEN: Taking a lock
	// THEN: An error is returned instead of a silent "not acquired"

	l := NewRedisLocker(unreachableClient(t), nil)
	token, acquired, err := l.TryLock(context.Background(), "schedule:act-1", time.Second)
	require.Error(t, err)
	assert.False(t, acquired)
	assert.Empty(t, token)
}

func TestRedisLocker_UnlockSurfacesConnectionErrors(t *testing.T) {
	l := NewRedisLocker(unreachableClient(t), nil)
	assert.Error(t, l.Unlock(context.Background(), "schedule:act-1", "token"))
}

func TestNewRedisClient_FailsFast(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

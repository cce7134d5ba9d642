package kobosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// RedisLocker is a Locker backed by redislock. Obtain does not retry, so a
// second sync of the same campaign fails fast with ErrSyncInProgress.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrSyncInProgress
		}
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return lock, nil
}

func lockKey(campaignId int) string {
	return fmt.Sprintf("kobo-sync:campaign:%d", campaignId)
}

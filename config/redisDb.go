package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB returns nil when Redis is not configured.
func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns nil when Redis is not configured.
func GetRedisLock() *redislock.Client {
	return locker
}

func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// RemoveRedisKeysByPattern deletes every key matching pattern using SCAN, so
// large keyspaces are not blocked.
func RemoveRedisKeysByPattern(ctx context.Context, pattern string) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return RemoveRedisKey(ctx, keys...)
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// An empty REDIS_ADDRESS leaves Redis disabled, which turns off the sync lock
// and the summary cache. maxAttempts <= 0 retries forever.
func ConnectRedisWithRetry(ctx context.Context, maxAttempts int) error {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; redis lock and cache disabled")
		return nil
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       EnvInt("REDIS_DB", 0),
			PoolSize: 20,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(rdb)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return nil
		}
		_ = client.Close()

		if maxAttempts > 0 && attempt >= maxAttempts {
			return fmt.Errorf("connect redis %s after %d attempts: %w", redisAddr, attempt, err)
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

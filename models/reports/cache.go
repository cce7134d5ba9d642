package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
)

// Cache stores rendered summaries. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, campaignId int) error
}

// RedisCache keeps summaries in the global Redis client. Every call is a no-op
// miss when Redis is not configured.
type RedisCache struct{}

func (RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	return config.GetRedisObject(ctx, key, dest)
}

func (RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return config.SetRedisObject(ctx, key, value, ttl)
}

func (RedisCache) Invalidate(ctx context.Context, campaignId int) error {
	return config.RemoveRedisKeysByPattern(ctx, campaignPrefix(campaignId)+"*")
}

func campaignPrefix(campaignId int) string {
	return fmt.Sprintf("survey-summary:campaign:%d:", campaignId)
}

func cacheKey(campaignId int, name string) string {
	return campaignPrefix(campaignId) + name
}

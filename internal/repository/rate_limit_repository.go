package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitRepository 在 Redis 中实现固定窗口计数。
type RateLimitRepository struct {
	rdb *redis.Client
}

// NewRateLimitRepository 创建限流计数仓库。
func NewRateLimitRepository(rdb *redis.Client) *RateLimitRepository {
	return &RateLimitRepository{rdb: rdb}
}

// Hit 计入一次请求并返回当前窗口内的请求数。窗口从第一次请求开始计时。
func (r *RateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

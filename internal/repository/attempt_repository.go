package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// AttemptRepository 在 Redis 中记录入库任务的失败次数。
type AttemptRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAttemptRepository 创建失败计数仓库，计数在 24 小时后自动过期。
func NewAttemptRepository(rdb *redis.Client) *AttemptRepository {
	return &AttemptRepository{rdb: rdb, ttl: 24 * time.Hour}
}

// Incr 自增并返回当前失败次数。
func (r *AttemptRepository) Incr(ctx context.Context, key string) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Reset 清理失败计数。
func (r *AttemptRepository) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

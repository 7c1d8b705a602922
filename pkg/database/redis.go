package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/pkg/log"
)

// OpenRedis 创建 Redis 客户端并测试连接
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis client connected successfully")
	return rdb, nil
}

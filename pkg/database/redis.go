package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"pdfchat-go/internal/config"
	"pdfchat-go/pkg/log"
)

// NewRedis 创建 Redis 客户端并测试连接。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}

package utils

import (
	"context"
	"fmt"

	"auction-storefront/internal/config"
	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

func InitializeRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("Connected to Redis", "address", cfg.Address)
	return rdb, nil
}

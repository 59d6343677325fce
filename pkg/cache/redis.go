package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/screentime-api/pkg/config"
)

const keyPrefix = "screentime:"

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// LedgerKey is the cache key of a student's ledger view.
func LedgerKey(studentID string) string {
	return keyPrefix + "ledger:" + studentID
}

// DashboardKey is the cache key of a class dashboard summary.
func DashboardKey(classID string) string {
	return keyPrefix + "dashboard:" + classID
}

// DashboardPattern matches every cached dashboard.
func DashboardPattern() string {
	return keyPrefix + "dashboard:*"
}

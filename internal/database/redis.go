package database

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisDialTimeout  = 3 * time.Second
	redisReadTimeout  = 2 * time.Second
	redisWriteTimeout = 2 * time.Second
	redisPingTimeout  = 2 * time.Second
	redisPoolSize     = 10
)

var ErrRedisNotConfigured = errors.New("redis address is not configured")

// NewRedis connects to REDIS_ADDR and validates the connection with PING.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	if config.Conf.RedisAddr == "" {
		return nil, ErrRedisNotConfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Conf.RedisAddr,
		Password:     config.Conf.RedisPassword,
		DB:           config.Conf.RedisDB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
		PoolSize:     redisPoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		logging.Logger.Error("Failed to ping Redis",
			zap.String("addr", config.Conf.RedisAddr),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to Redis", zap.String("addr", config.Conf.RedisAddr))

	return client, nil
}

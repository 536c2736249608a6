package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/abandonment"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"go.uber.org/zap"
)

// One sweep, then exit. Suited to a cron job next to the long-running service.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Fatal("failed to connect to database", zap.String("error", err.Error()))
	}

	redisClient, err := database.NewRedis(ctx)
	if err != nil && !errors.Is(err, database.ErrRedisNotConfigured) {
		logging.Logger.Warn("redis unavailable, using local sweep lock", zap.String("error", err.Error()))
	}

	if redisClient != nil {
		defer redisClient.Close()
	}

	sweeper, err := abandonment.NewSweeper(dbConn, redisClient, nil)
	if err != nil {
		logging.Logger.Fatal("failed to create sweeper", zap.String("error", err.Error()))
	}
	defer sweeper.Close()

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		logging.Logger.Fatal("abandonment sweep failed", zap.String("error", err.Error()))
	}

	logging.Logger.Info("abandonment sweep finished",
		zap.Int("staleness_hours", config.Conf.AbandonmentStalenessHours),
		zap.Int("scanned", result.Scanned),
		zap.Int("flagged", result.Flagged),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/callgrade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(rootCtx)

		app, err := callgrade.NewApp(cancel)
		if err != nil {
			cancel()
			logging.Logger.Fatal("failed to create callgrade app", zap.String("error", err.Error()))
		}

		app.Run(ctx)

		cancel()

		if rootCtx.Err() != nil {
			logging.Logger.Info("shutdown signal received, exiting")
			return
		}

		app.HealthCheckerService.Check()
	}
}

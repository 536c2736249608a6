package abandonment

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"go.uber.org/zap"
)

type SweepWorker struct {
	Sweeper  *Sweeper
	Interval time.Duration
}

func NewWorker(sweeper *Sweeper) *SweepWorker {
	return &SweepWorker{
		Sweeper:  sweeper,
		Interval: time.Duration(config.Conf.AbandonmentSweepInterval) * time.Minute,
	}
}

func (worker *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(worker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := worker.Sweeper.Sweep(ctx)
			if err != nil {
				logging.Logger.Error("[Run] Abandonment sweep failed",
					zap.String("error", err.Error()),
					zap.Bool("is_context_error", ctx.Err() != nil),
				)
			}
		}
	}
}

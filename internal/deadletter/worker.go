package deadletter

import (
	"context"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type DeadLetterWorker struct {
	WorkerPool *ants.Pool
	DLService  *DeadLetterService
	Interval   time.Duration
}

func NewWorker(dlService *DeadLetterService) (*DeadLetterWorker, error) {
	workerPool, err := ants.NewPool(config.Conf.DeadLetterPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &DeadLetterWorker{
		WorkerPool: workerPool,
		DLService:  dlService,
		Interval:   time.Duration(config.Conf.DeadLetterInterval) * time.Minute,
	}, nil
}

func (dlWorker *DeadLetterWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dlWorker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.ProcessPending(ctx)
		}
	}
}

// ProcessPending reprocesses one batch of due records and waits for it.
func (dlWorker *DeadLetterWorker) ProcessPending(ctx context.Context) int {
	deadLetters, err := dlWorker.DLService.Pending(ctx)
	if err != nil {
		return 0
	}

	if len(deadLetters) == 0 {
		logging.Logger.Debug("[ProcessPending] No dead letters due")
		return 0
	}

	logging.Logger.Info("[ProcessPending] Start processing dead letters", zap.Int("count", len(deadLetters)))

	var waitGroup sync.WaitGroup

	submitted := 0

	for idx := range deadLetters {
		deadLetter := &deadLetters[idx]

		waitGroup.Add(1)

		err := dlWorker.WorkerPool.Submit(func() {
			defer waitGroup.Done()

			dlWorker.DLService.Reprocess(ctx, deadLetter)
		})
		if err != nil {
			waitGroup.Done()

			logging.Logger.Error("[ProcessPending] Failed to submit dead letter to worker pool",
				zap.Uint("id", deadLetter.ID),
				zap.String("error", err.Error()),
			)

			continue
		}

		submitted++
	}

	waitGroup.Wait()

	return submitted
}

func (dlWorker *DeadLetterWorker) Close() {
	dlWorker.WorkerPool.Release()
}

package healthchecker

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"go.uber.org/zap"
)

type CheckFunc func() error

type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
	Checks        map[string]CheckFunc
	Interval      time.Duration
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
		Checks: map[string]CheckFunc{
			circuitbreak.DBService:            CheckDB,
			circuitbreak.MinioService:         CheckMinio,
			circuitbreak.KafkaProducerService: CheckKafkaProducer,
		},
		Interval: time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second,
	}
}

// Monitor waits for the first open breaker and cancels the app context.
// It returns without action when ctx ends first.
func (h *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("health checker monitor start successfully")

	select {
	case <-ctx.Done():
		return
	case serviceName := <-circuitbreak.CircuitBreakChan:
		logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
		h.ErrorService = serviceName
		h.CtxCancelFunc()
	}
}

// Check blocks until the failed service reports healthy again. A shutdown
// that was not caused by a breaker returns immediately.
func (h *Healthchecker) Check() {
	if h.ErrorService == "" {
		logging.Logger.Warn("app stopped without a failed service")
		return
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		<-ticker.C

		if h.checkErrorService() {
			return
		}
	}
}

func (h *Healthchecker) checkErrorService() bool {
	check, ok := h.Checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("Unknown service in checkErrorService", zap.String("service", h.ErrorService))
		return false
	}

	err := check()
	if err != nil {
		logging.Logger.Warn("service still unhealthy",
			zap.String("service", h.ErrorService),
			zap.String("error", err.Error()),
		)

		return false
	}

	logging.Logger.Info("service back healthy", zap.String("service", h.ErrorService))

	return true
}

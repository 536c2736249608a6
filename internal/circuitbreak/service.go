package circuitbreak

import (
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"go.uber.org/zap"
)

var CircuitBreakChan chan string

const (
	DBService            = "database"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string, 1)
}

// TriggerError reports an open breaker to the health checker. It never blocks:
// one pending report is enough to restart the app.
func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Warn("circuit break reported before app creation", zap.String("service", service))
		return
	}

	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Debug("circuit break already pending", zap.String("service", service))
	}
}

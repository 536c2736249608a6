package healthchecker

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type probeMessage struct {
	Healthcheck bool      `json:"healthcheck"`
	SentAt      time.Time `json:"sent_at"`
}

// CheckKafkaProducer sends a probe to the feedback topic. Consumers ignore
// messages without a grade id.
func CheckKafkaProducer() error {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new kafka producer client", zap.String("error", err.Error()))
		return err
	}

	defer func() { _ = kafkaProducer.Close() }()

	return kafkaProducer.PublishJSON(
		config.Conf.KafkaFeedbackTopic,
		uuid.New().String(),
		probeMessage{Healthcheck: true, SentAt: time.Now().UTC()},
	)
}

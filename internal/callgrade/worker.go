package callgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"github.com/IBM/sarama"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type DeadLetterMarker interface {
	Mark(ctx context.Context, topic, key string, msg []byte, errMsg string) error
}

// newMessageHandler hands each message of topic to the worker pool.
func newMessageHandler(
	workerPool *ants.Pool,
	deadLetters DeadLetterMarker,
	topic string,
	handle deadletter.Handler,
) kafka.MessageHandler {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) {
		err := workerPool.Submit(func() {
			Dispatch(ctx, deadLetters, topic, handle, msg)
		})
		if err != nil {
			logging.Logger.Error("failed to submit job to ants pool",
				zap.String("topic", topic),
				zap.String("error", err.Error()),
			)

			markDeadLetter(ctx, deadLetters, topic, msg, err)
		}
	}
}

// Dispatch runs one message through handle. Retryable failures are parked in
// the dead-letter store; malformed messages are logged and dropped.
func Dispatch(
	ctx context.Context,
	deadLetters DeadLetterMarker,
	topic string,
	handle deadletter.Handler,
	msg *sarama.ConsumerMessage,
) {
	timer := prometheus.NewTimer(prometheusCallgrade.ProcessMessageDuration.WithLabelValues(topic))
	defer timer.ObserveDuration()

	if !msg.Timestamp.IsZero() {
		prometheusCallgrade.KafkaMessageLatency.WithLabelValues(topic).Observe(time.Since(msg.Timestamp).Seconds())
	}

	err := safeHandle(ctx, handle, msg)
	if err == nil {
		return
	}

	if errors.Is(err, ErrMalformedMessage) {
		logging.Logger.Warn("dropping malformed message",
			zap.String("topic", topic),
			zap.ByteString("key", msg.Key),
			zap.ByteString("msg_value", msg.Value),
			zap.String("error", err.Error()),
		)

		return
	}

	logging.Logger.Error("failed to process message",
		zap.String("topic", topic),
		zap.ByteString("key", msg.Key),
		zap.String("error", err.Error()),
	)

	markDeadLetter(ctx, deadLetters, topic, msg, err)
}

func safeHandle(ctx context.Context, handle deadletter.Handler, msg *sarama.ConsumerMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("panic in message worker", zap.Any("recover", r))

			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handle(ctx, msg.Key, msg.Value)
}

func markDeadLetter(ctx context.Context, deadLetters DeadLetterMarker, topic string, msg *sarama.ConsumerMessage, cause error) {
	err := deadLetters.Mark(ctx, topic, deadLetterKey(msg), msg.Value, cause.Error())
	if err != nil {
		logging.Logger.Error("failed to store dead letter",
			zap.String("topic", topic),
			zap.ByteString("key", msg.Key),
			zap.String("error", err.Error()),
		)
	}
}

// deadLetterKey identifies one consumed message. Kafka keys are shared by
// every event of a call and reviewer, so they cannot tell two events apart.
func deadLetterKey(msg *sarama.ConsumerMessage) string {
	return fmt.Sprintf("%d-%d", msg.Partition, msg.Offset)
}

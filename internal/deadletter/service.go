package deadletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoHandler = errors.New("no handler registered for topic")

// Handler reprocesses one message of a topic.
type Handler func(ctx context.Context, key, value []byte) error

type DeadLetterService struct {
	DLRepository *DeadLetterRepository
	Handlers     map[string]Handler
	Now          func() time.Time
}

func NewService(dbConn *gorm.DB, handlers map[string]Handler) *DeadLetterService {
	return &DeadLetterService{
		DLRepository: NewRepository(dbConn),
		Handlers:     handlers,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Mark parks a failed message for a later retry.
func (dlService *DeadLetterService) Mark(ctx context.Context, topic, key string, msg []byte, errMsg string) error {
	_, err := dlService.DLRepository.Upsert(ctx, topic, key, msg, errMsg, dlService.Now())
	if err != nil {
		return err
	}

	prometheusCallgrade.DeadLetterOutcomes.WithLabelValues(topic, "marked").Inc()

	logging.Logger.Info("[Mark] Message moved to dead letters",
		zap.String("topic", topic),
		zap.String("message_key", key),
		zap.String("reason", errMsg),
	)

	return nil
}

// Pending lists the records due for a retry, after releasing claims that
// outlived the claim TTL.
func (dlService *DeadLetterService) Pending(ctx context.Context) ([]EventDeadLetter, error) {
	now := dlService.Now()

	released, err := dlService.DLRepository.ReleaseStaleClaims(ctx, now)
	if err != nil {
		return nil, err
	}

	if released > 0 {
		logging.Logger.Warn("[Pending] Released stale dead letter claims", zap.Int64("count", released))
	}

	return dlService.DLRepository.GetPending(ctx, now)
}

// Reprocess runs a claimed record through its topic handler. Success deletes
// the record; failure returns it to pending with one more retry counted.
func (dlService *DeadLetterService) Reprocess(ctx context.Context, deadLetter *EventDeadLetter) {
	claimed, err := dlService.DLRepository.Claim(ctx, deadLetter, dlService.Now())
	if err != nil {
		logging.Logger.Error("[Reprocess] Failed to claim dead letter",
			zap.Uint("id", deadLetter.ID),
			zap.String("error", err.Error()),
		)

		return
	}

	if !claimed {
		logging.Logger.Debug("[Reprocess] Dead letter claimed by another worker", zap.Uint("id", deadLetter.ID))
		return
	}

	err = dlService.handle(ctx, deadLetter)
	if err != nil {
		logging.Logger.Error("[Reprocess] Failed to reprocess dead letter",
			zap.Uint("id", deadLetter.ID),
			zap.String("topic", deadLetter.Topic),
			zap.String("message_key", deadLetter.MessageKey),
			zap.Int("retry_count", deadLetter.RetryCount+1),
			zap.String("error", err.Error()),
		)

		prometheusCallgrade.DeadLetterOutcomes.WithLabelValues(deadLetter.Topic, "retry_failed").Inc()

		retryErr := dlService.DLRepository.IncreaseRetryCount(ctx, deadLetter, err.Error(), dlService.Now())
		if retryErr != nil {
			logging.Logger.Error("[Reprocess] Failed to return dead letter to pending",
				zap.Uint("id", deadLetter.ID),
				zap.String("error", retryErr.Error()),
			)
		}

		return
	}

	prometheusCallgrade.DeadLetterOutcomes.WithLabelValues(deadLetter.Topic, "recovered").Inc()

	logging.Logger.Info("[Reprocess] Dead letter processed successfully",
		zap.String("topic", deadLetter.Topic),
		zap.String("message_key", deadLetter.MessageKey),
	)

	err = dlService.DLRepository.Delete(ctx, deadLetter)
	if err != nil {
		logging.Logger.Warn("[Reprocess] Failed to delete processed dead letter",
			zap.Uint("id", deadLetter.ID),
			zap.String("error", err.Error()),
		)
	}
}

func (dlService *DeadLetterService) handle(ctx context.Context, deadLetter *EventDeadLetter) (err error) {
	handler, ok := dlService.Handlers[deadLetter.Topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, deadLetter.Topic)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(ctx, []byte(deadLetter.MessageKey), deadLetter.Msg)
}

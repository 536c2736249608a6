package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidEventDeadLetterResult      = errors.New("invalid result type, it should be pointer to EventDeadLetter")
	ErrInvalidEventDeadLetterSliceResult = errors.New("invalid result type, it should be slice of EventDeadLetter")
)

type DeadLetterRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	MaxRetries     int
	Limit          int
	RetryDelay     time.Duration
	ClaimTTL       time.Duration
}

func NewRepository(dbConn *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
		MaxRetries:     config.Conf.DeadLetterMaxRetries,
		Limit:          config.Conf.DeadLetterLimit,
		RetryDelay:     time.Duration(config.Conf.DeadLetterRetryDelay) * time.Minute,
		ClaimTTL:       time.Duration(config.Conf.DeadLetterClaimTTL) * time.Minute,
	}
}

// Upsert stores msg as pending, refreshing an existing row for the same
// topic and key. The retry count of an existing row is kept.
func (dlRepository *DeadLetterRepository) Upsert(
	ctx context.Context,
	topic, messageKey string,
	msg []byte,
	errMsg string,
	now time.Time,
) (*EventDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		deadLetter := EventDeadLetter{
			Topic:       topic,
			MessageKey:  messageKey,
			Msg:         msg,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		// A canceled consumer context must not lose the record.
		dbConn := dlRepository.DBConn.WithContext(context.WithoutCancel(ctx))

		err := dbConn.
			Where("topic = ? AND message_key = ?", topic, messageKey).
			Assign(map[string]any{
				"msg":           msg,
				"error":         errMsg,
				"status":        StatusPending,
				"last_retry_at": now,
			}).
			FirstOrCreate(&deadLetter).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to store dead letter",
				zap.String("topic", topic),
				zap.String("message_key", messageKey),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &deadLetter, nil
	})
	if err != nil {
		return nil, err
	}

	deadLetter, ok := result.(*EventDeadLetter)
	if !ok {
		return nil, ErrInvalidEventDeadLetterResult
	}

	return deadLetter, nil
}

// GetPending returns the oldest pending records whose retry delay has
// elapsed and that still have retries left.
func (dlRepository *DeadLetterRepository) GetPending(ctx context.Context, now time.Time) ([]EventDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []EventDeadLetter

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"status = ? AND last_retry_at <= ? AND retry_count < ?",
				StatusPending,
				now.Add(-dlRepository.RetryDelay),
				dlRepository.MaxRetries,
			).
			Order("created_at ASC").
			Order("id ASC").
			Limit(dlRepository.Limit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[GetPending] Failed to fetch dead letters",
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]EventDeadLetter)
	if !ok {
		return nil, ErrInvalidEventDeadLetterSliceResult
	}

	return records, nil
}

// Claim moves a pending record to in progress and stamps the claim time in
// last_retry_at. It reports false when another worker claimed it first.
func (dlRepository *DeadLetterRepository) Claim(ctx context.Context, deadLetter *EventDeadLetter, now time.Time) (bool, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := dlRepository.DBConn.WithContext(ctx).
			Model(&EventDeadLetter{}).
			Where("id = ? AND status = ?", deadLetter.ID, StatusPending).
			Updates(map[string]any{
				"status":        StatusInProgress,
				"last_retry_at": now,
			})
		if tx.Error != nil {
			logging.Logger.Error("[Claim] Failed to claim dead letter",
				zap.Uint("id", deadLetter.ID),
				zap.String("error", tx.Error.Error()),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	claimed, _ := result.(bool)
	if claimed {
		deadLetter.Status = StatusInProgress
	}

	return claimed, nil
}

// ReleaseStaleClaims returns records claimed longer than ClaimTTL ago to
// pending. A worker that lost its claim could not record the outcome.
func (dlRepository *DeadLetterRepository) ReleaseStaleClaims(ctx context.Context, now time.Time) (int64, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := dlRepository.DBConn.WithContext(ctx).
			Model(&EventDeadLetter{}).
			Where("status = ? AND last_retry_at <= ?", StatusInProgress, now.Add(-dlRepository.ClaimTTL)).
			Update("status", StatusPending)
		if tx.Error != nil {
			logging.Logger.Error("[ReleaseStaleClaims] Failed to release stale claims",
				zap.String("error", tx.Error.Error()),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected, nil
	})
	if err != nil {
		return 0, err
	}

	released, _ := result.(int64)

	return released, nil
}

func (dlRepository *DeadLetterRepository) IncreaseRetryCount(
	ctx context.Context,
	deadLetter *EventDeadLetter,
	errMsg string,
	now time.Time,
) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Model(&EventDeadLetter{}).
			Where("id = ?", deadLetter.ID).
			Updates(map[string]any{
				"retry_count":   gorm.Expr("retry_count + 1"),
				"last_retry_at": now,
				"status":        StatusPending,
				"error":         errMsg,
			}).Error
		if err != nil {
			logging.Logger.Error("[IncreaseRetryCount] Failed to update dead letter",
				zap.Uint("id", deadLetter.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

func (dlRepository *DeadLetterRepository) Delete(ctx context.Context, deadLetter *EventDeadLetter) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Where("id = ?", deadLetter.ID).
			Delete(&EventDeadLetter{}).Error
		if err != nil {
			logging.Logger.Error("[Delete] Failed to delete dead letter",
				zap.Uint("id", deadLetter.ID),
				zap.String("error", err.Error()),
			)
		}

		return nil, err
	})

	return err
}

package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidAction      = errors.New("unknown interaction action")
	ErrMissingParticipant = errors.New("interaction requires a call id and a user id")
)

type InteractionService struct {
	Repository     *InteractionRepository
	MaxPageSeconds int
	Now            func() time.Time
}

func NewService(dbConn *gorm.DB) *InteractionService {
	return &InteractionService{
		Repository:     NewRepository(dbConn),
		MaxPageSeconds: config.Conf.InteractionMaxPageSeconds,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// ClampPageSeconds bounds page seconds to [0, maxSeconds]. Nil stays nil.
func ClampPageSeconds(pageSeconds *int, maxSeconds int) *int {
	if pageSeconds == nil {
		return nil
	}

	clamped := min(max(*pageSeconds, 0), maxSeconds)

	return &clamped
}

// Record appends one interaction event stamped with the current time.
func (interactionService *InteractionService) Record(
	ctx context.Context,
	callID, userID uint,
	action string,
	pageSeconds *int,
	metadata map[string]any,
) (*CallInteraction, error) {
	return interactionService.RecordAt(ctx, time.Time{}, callID, userID, action, pageSeconds, metadata)
}

// RecordAt appends one interaction event that happened at occurredAt. A zero
// occurredAt, or one in the future, is stamped with the current time.
func (interactionService *InteractionService) RecordAt(
	ctx context.Context,
	occurredAt time.Time,
	callID, userID uint,
	action string,
	pageSeconds *int,
	metadata map[string]any,
) (*CallInteraction, error) {
	if !IsValidAction(action) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if callID == 0 || userID == 0 {
		return nil, ErrMissingParticipant
	}

	interaction := &CallInteraction{
		CallID:      callID,
		UserID:      userID,
		Action:      action,
		PageSeconds: ClampPageSeconds(pageSeconds, interactionService.MaxPageSeconds),
		CreatedAt:   interactionService.occurredAt(occurredAt),
	}

	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode interaction metadata: %w", err)
		}

		interaction.Metadata = encoded
	}

	appended, err := interactionService.Repository.Append(ctx, interaction)
	if err != nil {
		return nil, err
	}

	prometheusCallgrade.InteractionsRecorded.WithLabelValues(action).Inc()

	logging.Logger.Debug("[Record] Interaction recorded",
		zap.Uint("interaction_id", appended.ID),
		zap.Uint("call_id", callID),
		zap.Uint("user_id", userID),
		zap.String("action", action),
	)

	return appended, nil
}

func (interactionService *InteractionService) occurredAt(occurredAt time.Time) time.Time {
	now := interactionService.Now()
	if occurredAt.IsZero() || occurredAt.After(now) {
		return now
	}

	return occurredAt.UTC()
}

func (interactionService *InteractionService) HasTerminalAction(ctx context.Context, callID, userID uint) (bool, error) {
	return interactionService.Repository.HasTerminalAction(ctx, callID, userID)
}

// History lists the events of a call in the order they happened.
func (interactionService *InteractionService) History(ctx context.Context, callID uint) ([]CallInteraction, error) {
	return interactionService.Repository.ListByCall(ctx, callID)
}

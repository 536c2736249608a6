package interaction

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidInteractionResult      = errors.New("invalid result type, it should be pointer to CallInteraction")
	ErrInvalidInteractionSliceResult = errors.New("invalid result type, it should be slice of CallInteraction")
	ErrInvalidExistsResult           = errors.New("invalid result type, it should be bool")
)

// InteractionRepository is insert-only: it exposes no update or delete.
type InteractionRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *InteractionRepository {
	return &InteractionRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
	}
}

func (interactionRepository *InteractionRepository) Append(
	ctx context.Context,
	interaction *CallInteraction,
) (*CallInteraction, error) {
	result, err := interactionRepository.CircuitBreaker.Execute(func() (any, error) {
		err := interactionRepository.DBConn.WithContext(ctx).Create(interaction).Error
		if err != nil {
			logging.Logger.Error("[Append] Failed to insert interaction",
				zap.Uint("call_id", interaction.CallID),
				zap.Uint("user_id", interaction.UserID),
				zap.String("action", interaction.Action),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return interaction, nil
	})
	if err != nil {
		return nil, err
	}

	appended, ok := result.(*CallInteraction)
	if !ok {
		return nil, ErrInvalidInteractionResult
	}

	return appended, nil
}

func (interactionRepository *InteractionRepository) HasTerminalAction(
	ctx context.Context,
	callID, userID uint,
) (bool, error) {
	result, err := interactionRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := interactionRepository.DBConn.WithContext(ctx).
			Model(&CallInteraction{}).
			Where("call_id = ? AND user_id = ? AND action IN ?", callID, userID, TerminalActions).
			Count(&count).Error
		if err != nil {
			logging.Logger.Error("[HasTerminalAction] Failed to query terminal actions",
				zap.Uint("call_id", callID),
				zap.Uint("user_id", userID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	exists, ok := result.(bool)
	if !ok {
		return false, ErrInvalidExistsResult
	}

	return exists, nil
}

// FindStaleOpened returns opened events created at or before cutoff that have
// no terminal action for the same pair at or after their own created_at.
// Newest first, so the first row seen per pair is its latest stale open.
func (interactionRepository *InteractionRepository) FindStaleOpened(
	ctx context.Context,
	cutoff time.Time,
) ([]CallInteraction, error) {
	result, err := interactionRepository.CircuitBreaker.Execute(func() (any, error) {
		var interactions []CallInteraction

		err := interactionRepository.DBConn.WithContext(ctx).
			Table("call_interactions AS opened").
			Select("opened.*").
			Where("opened.action = ? AND opened.created_at <= ?", ActionOpened, cutoff).
			Where(`NOT EXISTS (
				SELECT 1 FROM call_interactions AS terminal
				WHERE terminal.call_id = opened.call_id
				AND terminal.user_id = opened.user_id
				AND terminal.action IN ?
				AND terminal.created_at >= opened.created_at
			)`, TerminalActions).
			Order("opened.created_at DESC").
			Order("opened.id DESC").
			Find(&interactions).Error
		if err != nil {
			logging.Logger.Error("[FindStaleOpened] Failed to fetch stale opened interactions",
				zap.Time("cutoff", cutoff),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return interactions, nil
	})
	if err != nil {
		return nil, err
	}

	interactions, ok := result.([]CallInteraction)
	if !ok {
		return nil, ErrInvalidInteractionSliceResult
	}

	return interactions, nil
}

func (interactionRepository *InteractionRepository) ListByCall(
	ctx context.Context,
	callID uint,
) ([]CallInteraction, error) {
	result, err := interactionRepository.CircuitBreaker.Execute(func() (any, error) {
		var interactions []CallInteraction

		err := interactionRepository.DBConn.WithContext(ctx).
			Where("call_id = ?", callID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&interactions).Error
		if err != nil {
			logging.Logger.Error("[ListByCall] Failed to fetch interactions",
				zap.Uint("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return interactions, nil
	})
	if err != nil {
		return nil, err
	}

	interactions, ok := result.([]CallInteraction)
	if !ok {
		return nil, ErrInvalidInteractionSliceResult
	}

	return interactions, nil
}

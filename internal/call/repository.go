package call

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrInvalidCallResult = errors.New("invalid result type, it should be pointer to Call struct")

type ListFilter struct {
	DisplayStatuses []DisplayStatus
	GradingStatuses []GradingStatus
	AccountID       uint
	Limit           int
	Offset          int
}

type ListResult struct {
	Calls []Call
	Total int64
}

type CallRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewCallRepository(dbConn *gorm.DB) *CallRepository {
	return &CallRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
	}
}

// preloadGradeStatuses loads just enough of each grade to derive the grading status.
func preloadGradeStatuses(db *gorm.DB) *gorm.DB {
	return db.Select("id", "call_id", "user_id", "status")
}

// GetCallByID retrieves a Call with its grades.
func (callRepository *CallRepository) GetCallByID(ctx context.Context, callID uint) (*Call, error) {
	result, err := callRepository.CircuitBreaker.Execute(func() (any, error) {
		var call Call

		err := callRepository.DBConn.WithContext(ctx).
			Preload("Grades", preloadGradeStatuses).
			Where("id = ?", callID).
			First(&call).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logging.Logger.Error("[GetCallByID] Failed to fetch call",
					zap.Uint("call_id", callID),
					zap.String("error", err.Error()),
					zap.Bool("is_context_error", ctx.Err() != nil),
				)
			}

			return nil, err
		}

		return &call, nil
	})
	if err != nil {
		return nil, err
	}

	call, ok := result.(*Call)
	if !ok {
		return nil, ErrInvalidCallResult
	}

	return call, nil
}

// ListCalls pages calls filtered by derived statuses, evaluated in SQL.
func (callRepository *CallRepository) ListCalls(ctx context.Context, filter ListFilter) (*ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	offset := max(filter.Offset, 0)

	result, err := callRepository.CircuitBreaker.Execute(func() (any, error) {
		query := callRepository.DBConn.WithContext(ctx).
			Model(&Call{}).
			Scopes(
				WithDisplayStatus(filter.DisplayStatuses...),
				WithGradingStatus(filter.GradingStatuses...),
			)

		if filter.AccountID != 0 {
			query = query.Where("calls.account_id = ?", filter.AccountID)
		}

		var total int64

		err := query.Session(&gorm.Session{}).Count(&total).Error
		if err != nil {
			logging.Logger.Error("[ListCalls] Failed to count calls",
				zap.Any("filter", filter),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		var calls []Call

		err = query.Session(&gorm.Session{}).
			Preload("Grades", preloadGradeStatuses).
			Order("calls.id ASC").
			Limit(limit).
			Offset(offset).
			Find(&calls).Error
		if err != nil {
			logging.Logger.Error("[ListCalls] Failed to fetch calls",
				zap.Any("filter", filter),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &ListResult{Calls: calls, Total: total}, nil
	})
	if err != nil {
		return nil, err
	}

	listResult, ok := result.(*ListResult)
	if !ok {
		return nil, ErrInvalidCallResult
	}

	return listResult, nil
}

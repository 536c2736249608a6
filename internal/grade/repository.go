package grade

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
	ErrInvalidGradeResult          = errors.New("invalid result type, it should be pointer to Grade")
	ErrInvalidRubricCategoryResult = errors.New("invalid result type, it should be slice of RubricCategory")
)

type GradeRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *GradeRepository {
	return &GradeRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
	}
}

func (gradeRepository *GradeRepository) GetGradeWithScores(ctx context.Context, gradeID uint) (*Grade, error) {
	result, err := gradeRepository.CircuitBreaker.Execute(func() (any, error) {
		var grade Grade

		err := gradeRepository.DBConn.WithContext(ctx).
			Preload("CategoryScores").
			Where("id = ?", gradeID).
			First(&grade).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logging.Logger.Error("[GetGradeWithScores] Failed to fetch grade",
					zap.Uint("grade_id", gradeID),
					zap.String("error", err.Error()),
					zap.Bool("is_context_error", ctx.Err() != nil),
				)
			}

			return nil, err
		}

		return &grade, nil
	})
	if err != nil {
		return nil, err
	}

	grade, ok := result.(*Grade)
	if !ok {
		return nil, ErrInvalidGradeResult
	}

	return grade, nil
}

// ListRubricCategories returns every category, inactive ones included.
func (gradeRepository *GradeRepository) ListRubricCategories(ctx context.Context) ([]RubricCategory, error) {
	result, err := gradeRepository.CircuitBreaker.Execute(func() (any, error) {
		var categories []RubricCategory

		err := gradeRepository.DBConn.WithContext(ctx).
			Order("position ASC").
			Order("id ASC").
			Find(&categories).Error
		if err != nil {
			logging.Logger.Error("[ListRubricCategories] Failed to fetch rubric categories",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return categories, nil
	})
	if err != nil {
		return nil, err
	}

	categories, ok := result.([]RubricCategory)
	if !ok {
		return nil, ErrInvalidRubricCategoryResult
	}

	return categories, nil
}

// SaveScore stores the computed score and marks the grade submitted.
func (gradeRepository *GradeRepository) SaveScore(
	ctx context.Context,
	gradeID uint,
	overallScore, percentage float64,
	completedAt time.Time,
) error {
	_, err := gradeRepository.CircuitBreaker.Execute(func() (any, error) {
		err := gradeRepository.DBConn.WithContext(ctx).
			Model(&Grade{}).
			Where("id = ?", gradeID).
			Updates(map[string]any{
				"overall_score":        overallScore,
				"percentage":           percentage,
				"status":               StatusSubmitted,
				"grading_completed_at": completedAt,
			}).Error
		if err != nil {
			logging.Logger.Error("[SaveScore] Failed to store grade score",
				zap.Uint("grade_id", gradeID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

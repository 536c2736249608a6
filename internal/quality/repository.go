package quality

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidGradeRowsResult = errors.New("invalid result type, it should be slice of GradeRow")

// GradeRow is a submitted grade joined with the talk time of its call.
type GradeRow struct {
	GradeID            uint      `gorm:"column:grade_id"`
	CallID             uint      `gorm:"column:call_id"`
	ReviewerID         uint      `gorm:"column:user_id"`
	OverallScore       *float64  `gorm:"column:overall_score"`
	Percentage         *float64  `gorm:"column:percentage"`
	PlaybackSeconds    int       `gorm:"column:playback_seconds"`
	TalkTime           int       `gorm:"column:talk_time"`
	GradingCompletedAt time.Time `gorm:"column:grading_completed_at"`
}

type QualityRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *QualityRepository {
	return &QualityRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
	}
}

// SubmittedGrades lists grades submitted in [from, to), ordered by completion.
func (qualityRepository *QualityRepository) SubmittedGrades(
	ctx context.Context,
	from, to time.Time,
) ([]GradeRow, error) {
	result, err := qualityRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []GradeRow

		err := qualityRepository.DBConn.WithContext(ctx).
			Table("grades").
			Select(
				"grades.id AS grade_id",
				"grades.call_id",
				"grades.user_id",
				"grades.overall_score",
				"grades.percentage",
				"grades.playback_seconds",
				"calls.talk_time",
				"grades.grading_completed_at",
			).
			Joins("JOIN calls ON calls.id = grades.call_id").
			Where("grades.status = ?", grade.StatusSubmitted).
			Where("grades.grading_completed_at >= ? AND grades.grading_completed_at < ?", from, to).
			Order("grades.grading_completed_at ASC").
			Order("grades.id ASC").
			Scan(&rows).Error
		if err != nil {
			logging.Logger.Error("[SubmittedGrades] Failed to fetch submitted grades",
				zap.Time("from", from),
				zap.Time("to", to),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	rows, ok := result.([]GradeRow)
	if !ok {
		return nil, ErrInvalidGradeRowsResult
	}

	return rows, nil
}

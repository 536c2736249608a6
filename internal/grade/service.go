package grade

import (
	"context"
	"math"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/scoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ReconcileTolerance is the largest percentage drift treated as in sync.
const ReconcileTolerance = 0.005

type CategoryRating struct {
	RubricCategoryID uint    `json:"rubric_category_id"`
	Name             string  `json:"name"`
	Weight           float64 `json:"weight"`
	Score            int     `json:"score"`
	Label            string  `json:"label"`
	Counted          bool    `json:"counted"`
}

// Feedback is the scored view of a grade used for persistence and the
// feedback email alike.
type Feedback struct {
	GradeID     uint             `json:"grade_id"`
	CallID      uint             `json:"call_id"`
	ReviewerID  uint             `json:"reviewer_id"`
	Status      string           `json:"status"`
	Result      scoring.Result   `json:"result"`
	Categories  []CategoryRating `json:"categories"`
	CompletedAt *time.Time       `json:"grading_completed_at,omitempty"`
}

type Reconciliation struct {
	GradeID              uint     `json:"grade_id"`
	StoredPercentage     *float64 `json:"stored_percentage"`
	StoredOverallScore   *float64 `json:"stored_overall_score"`
	RecomputedPercentage float64  `json:"recomputed_percentage"`
	RecomputedAverage    float64  `json:"recomputed_average"`
	Drift                float64  `json:"drift"`
	InSync               bool     `json:"in_sync"`
}

type GradeService struct {
	Repository *GradeRepository
	Now        func() time.Time
}

func NewService(dbConn *gorm.DB) *GradeService {
	return &GradeService{
		Repository: NewRepository(dbConn),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (gradeService *GradeService) load(ctx context.Context, gradeID uint) (*Grade, []RubricCategory, error) {
	var (
		grade      *Grade
		categories []RubricCategory
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error

		grade, err = gradeService.Repository.GetGradeWithScores(groupCtx, gradeID)

		return err
	})

	group.Go(func() error {
		var err error

		categories, err = gradeService.Repository.ListRubricCategories(groupCtx)

		return err
	})

	err := group.Wait()
	if err != nil {
		return nil, nil, err
	}

	return grade, categories, nil
}

// Evaluate scores a loaded grade against the rubric without side effects.
func Evaluate(grade *Grade, categories []RubricCategory) *Feedback {
	scores := grade.ScoreMap()

	scoringCategories := make([]scoring.Category, 0, len(categories))
	ratings := make([]CategoryRating, 0, len(scores))

	for _, category := range categories {
		scoringCategories = append(scoringCategories, scoring.Category{
			ID:     category.ID,
			Weight: category.Weight,
			Active: category.IsActive,
		})

		score, ok := scores[category.ID]
		if !ok {
			continue
		}

		ratings = append(ratings, CategoryRating{
			RubricCategoryID: category.ID,
			Name:             category.Name,
			Weight:           category.Weight,
			Score:            score,
			Label:            scoring.CategoryLabel(score),
			Counted: category.IsActive && category.Weight > 0 &&
				score >= scoring.MinCategoryScore && score <= scoring.MaxCategoryScore,
		})
	}

	return &Feedback{
		GradeID:     grade.ID,
		CallID:      grade.CallID,
		ReviewerID:  grade.UserID,
		Status:      grade.Status,
		Result:      scoring.Score(scores, scoringCategories),
		Categories:  ratings,
		CompletedAt: grade.GradingCompletedAt,
	}
}

// Preview recomputes a grade's score without writing it.
func (gradeService *GradeService) Preview(ctx context.Context, gradeID uint) (*Feedback, error) {
	grade, categories, err := gradeService.load(ctx, gradeID)
	if err != nil {
		return nil, err
	}

	return Evaluate(grade, categories), nil
}

// Finalize scores a grade and stores the result as submitted. A completion
// time already recorded by the grading UI is kept.
func (gradeService *GradeService) Finalize(ctx context.Context, gradeID uint) (*Feedback, error) {
	feedback, err := gradeService.Preview(ctx, gradeID)
	if err != nil {
		return nil, err
	}

	completedAt := gradeService.Now()
	if feedback.CompletedAt != nil {
		completedAt = *feedback.CompletedAt
	}

	err = gradeService.Repository.SaveScore(
		ctx,
		gradeID,
		feedback.Result.Average,
		feedback.Result.Percentage,
		completedAt,
	)
	if err != nil {
		return nil, err
	}

	feedback.Status = StatusSubmitted
	feedback.CompletedAt = &completedAt

	prometheusCallgrade.GradesScored.WithLabelValues(feedback.Result.Band).Inc()

	logging.Logger.Info("[Finalize] Grade scored",
		zap.Uint("grade_id", gradeID),
		zap.Float64("percentage", feedback.Result.Percentage),
		zap.String("band", feedback.Result.Band),
	)

	return feedback, nil
}

// Reconcile compares the stored percentage with a fresh computation.
func (gradeService *GradeService) Reconcile(ctx context.Context, gradeID uint) (*Reconciliation, error) {
	grade, categories, err := gradeService.load(ctx, gradeID)
	if err != nil {
		return nil, err
	}

	result := Evaluate(grade, categories).Result

	reconciliation := &Reconciliation{
		GradeID:              grade.ID,
		StoredPercentage:     grade.Percentage,
		StoredOverallScore:   grade.OverallScore,
		RecomputedPercentage: result.Percentage,
		RecomputedAverage:    result.Average,
	}

	if grade.Percentage != nil {
		reconciliation.Drift = math.Abs(*grade.Percentage - result.Percentage)
		reconciliation.InSync = reconciliation.Drift <= ReconcileTolerance
	}

	if !reconciliation.InSync {
		logging.Logger.Warn("[Reconcile] Stored grade score drifted",
			zap.Uint("grade_id", gradeID),
			zap.Float64("drift", reconciliation.Drift),
			zap.Bool("has_stored_percentage", grade.Percentage != nil),
		)
	}

	return reconciliation, nil
}

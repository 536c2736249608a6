package quality

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/settings"
	"gorm.io/gorm"
)

var ErrInvalidRange = errors.New("date range requires from and to with from before to")

// DateRange is half open: [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return ErrInvalidRange
	}

	return nil
}

type Review struct {
	GradeID         uint           `json:"grade_id"`
	CallID          uint           `json:"call_id"`
	ReviewerID      uint           `json:"reviewer_id"`
	OverallScore    *float64       `json:"overall_score"`
	Percentage      *float64       `json:"percentage"`
	PlaybackSeconds int            `json:"playback_seconds"`
	TalkTime        int            `json:"talk_time"`
	Ratio           *float64       `json:"playback_ratio"`
	RatioDisplay    string         `json:"playback_ratio_display"`
	Classification  Classification `json:"classification"`
	CompletedAt     time.Time      `json:"grading_completed_at"`
}

type ReviewerSummary struct {
	ReviewerID        uint     `json:"reviewer_id"`
	Grades            int      `json:"grades"`
	AveragePercentage *float64 `json:"average_percentage"`
	AverageRatio      *float64 `json:"average_playback_ratio"`
	Flagged           int      `json:"flagged"`
	Warned            int      `json:"warned"`
}

type GradeSource interface {
	SubmittedGrades(ctx context.Context, from, to time.Time) ([]GradeRow, error)
}

// QualityMonitor is read-only: it never changes grades.
type QualityMonitor struct {
	Grades   GradeSource
	Settings SettingsReader
}

func NewMonitor(dbConn *gorm.DB) *QualityMonitor {
	return &QualityMonitor{
		Grades:   NewRepository(dbConn),
		Settings: settings.NewRepository(dbConn),
	}
}

func (monitor *QualityMonitor) Thresholds(ctx context.Context) Thresholds {
	return LoadThresholds(ctx, monitor.Settings)
}

// Reviews classifies every grade submitted inside dateRange.
func (monitor *QualityMonitor) Reviews(ctx context.Context, dateRange DateRange) ([]Review, Thresholds, error) {
	err := dateRange.Validate()
	if err != nil {
		return nil, Thresholds{}, err
	}

	rows, err := monitor.Grades.SubmittedGrades(ctx, dateRange.From, dateRange.To)
	if err != nil {
		return nil, Thresholds{}, err
	}

	thresholds := monitor.Thresholds(ctx)

	return BuildReviews(rows, thresholds), thresholds, nil
}

// ReviewerSummaries aggregates Reviews per reviewer.
func (monitor *QualityMonitor) ReviewerSummaries(
	ctx context.Context,
	dateRange DateRange,
) ([]ReviewerSummary, Thresholds, error) {
	reviews, thresholds, err := monitor.Reviews(ctx, dateRange)
	if err != nil {
		return nil, Thresholds{}, err
	}

	return Summarize(reviews), thresholds, nil
}

func BuildReviews(rows []GradeRow, thresholds Thresholds) []Review {
	reviews := make([]Review, 0, len(rows))

	for _, row := range rows {
		ratio := PlaybackRatio(row.PlaybackSeconds, row.TalkTime)

		reviews = append(reviews, Review{
			GradeID:         row.GradeID,
			CallID:          row.CallID,
			ReviewerID:      row.ReviewerID,
			OverallScore:    row.OverallScore,
			Percentage:      row.Percentage,
			PlaybackSeconds: row.PlaybackSeconds,
			TalkTime:        row.TalkTime,
			Ratio:           ratio,
			RatioDisplay:    FormatRatio(ratio),
			Classification:  Classify(ratio, thresholds),
			CompletedAt:     row.GradingCompletedAt,
		})
	}

	return reviews
}

// Summarize groups reviews by reviewer, ordered by reviewer id. Averages skip
// missing values; a reviewer with none has a nil average.
func Summarize(reviews []Review) []ReviewerSummary {
	type accumulator struct {
		summary       ReviewerSummary
		percentageSum float64
		percentageN   int
		ratioSum      float64
		ratioN        int
	}

	byReviewer := make(map[uint]*accumulator)

	for _, review := range reviews {
		acc, ok := byReviewer[review.ReviewerID]
		if !ok {
			acc = &accumulator{summary: ReviewerSummary{ReviewerID: review.ReviewerID}}
			byReviewer[review.ReviewerID] = acc
		}

		acc.summary.Grades++

		if review.Percentage != nil {
			acc.percentageSum += *review.Percentage
			acc.percentageN++
		}

		if review.Ratio != nil {
			acc.ratioSum += *review.Ratio
			acc.ratioN++
		}

		switch review.Classification {
		case ClassificationFlagged:
			acc.summary.Flagged++
		case ClassificationWarned:
			acc.summary.Warned++
		}
	}

	summaries := make([]ReviewerSummary, 0, len(byReviewer))

	for _, acc := range byReviewer {
		acc.summary.AveragePercentage = average(acc.percentageSum, acc.percentageN, 2)
		acc.summary.AverageRatio = average(acc.ratioSum, acc.ratioN, 1)
		summaries = append(summaries, acc.summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ReviewerID < summaries[j].ReviewerID
	})

	return summaries
}

func average(sum float64, count, places int) *float64 {
	if count == 0 {
		return nil
	}

	factor := math.Pow(10, float64(places))
	value := math.Round(sum/float64(count)*factor) / factor

	return &value
}

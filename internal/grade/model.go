package grade

import (
	"time"
)

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

type Grade struct {
	ID                 uint                 `gorm:"column:id;primaryKey;autoIncrement"                json:"id"`
	CallID             uint                 `gorm:"column:call_id;not null;index"                     json:"call_id"`
	UserID             uint                 `gorm:"column:user_id;not null;index"                     json:"user_id"`
	Status             string               `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`
	OverallScore       *float64             `gorm:"column:overall_score;type:numeric(4,2)"            json:"overall_score"`
	Percentage         *float64             `gorm:"column:percentage;type:numeric(5,2)"               json:"percentage"`
	PlaybackSeconds    int                  `gorm:"column:playback_seconds;not null;default:0"        json:"playback_seconds"`
	GradingStartedAt   *time.Time           `gorm:"column:grading_started_at"                         json:"grading_started_at"`
	GradingCompletedAt *time.Time           `gorm:"column:grading_completed_at;index"                 json:"grading_completed_at"`
	CategoryScores     []GradeCategoryScore `gorm:"foreignKey:GradeID"                                json:"category_scores,omitempty"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"                  json:"created_at"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"                  json:"updated_at"`
}

func (Grade) TableName() string {
	return "grades"
}

func (g *Grade) IsSubmitted() bool {
	return g.Status == StatusSubmitted
}

// ScoreMap keys category scores by rubric category id.
func (g *Grade) ScoreMap() map[uint]int {
	scores := make(map[uint]int, len(g.CategoryScores))
	for _, categoryScore := range g.CategoryScores {
		scores[categoryScore.RubricCategoryID] = categoryScore.Score
	}

	return scores
}

type GradeCategoryScore struct {
	ID               uint `gorm:"column:id;primaryKey;autoIncrement"  json:"id"`
	GradeID          uint `gorm:"column:grade_id;not null;index"      json:"grade_id"`
	RubricCategoryID uint `gorm:"column:rubric_category_id;not null"  json:"rubric_category_id"`
	Score            int  `gorm:"column:score;not null"               json:"score"`
}

func (GradeCategoryScore) TableName() string {
	return "grade_category_scores"
}

type RubricCategory struct {
	ID       uint    `gorm:"column:id;primaryKey;autoIncrement"          json:"id"`
	Name     string  `gorm:"column:name;type:varchar(255);not null"      json:"name"`
	Weight   float64 `gorm:"column:weight;type:numeric(6,4);not null"    json:"weight"`
	IsActive bool    `gorm:"column:is_active;not null"                   json:"is_active"`
	Position int     `gorm:"column:position;not null;default:0"          json:"position"`
}

func (RubricCategory) TableName() string {
	return "rubric_categories"
}

package call

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
)

// Raw dial statuses reported by the telephony provider. Values outside this
// set are accepted and treated as answered-like.
const (
	DialAnswered  = "answered"
	DialCompleted = "completed"
	DialReceived  = "received"
	DialVoicemail = "voicemail"
	DialNoAnswer  = "no_answer"
	DialMissed    = "missed"
	DialAbandoned = "abandoned"
	DialBusy      = "busy"
	DialOther     = "other"
)

type Call struct {
	ID          uint          `gorm:"column:id;primaryKey;autoIncrement"                         json:"id"`
	ExternalID  string        `gorm:"column:external_id;type:varchar(255);not null;uniqueIndex"  json:"external_id"`
	AccountID   uint          `gorm:"column:account_id;not null;index"                           json:"account_id"`
	DialStatus  string        `gorm:"column:dial_status;type:varchar(50);not null;default:''"    json:"dial_status"`
	TalkTime    int           `gorm:"column:talk_time;not null;default:0"                        json:"talk_time"`
	Transcript  *string       `gorm:"column:transcript;type:text"                                json:"-"`
	ProcessedAt *time.Time    `gorm:"column:processed_at"                                        json:"processed_at"`
	IgnoredAt   *time.Time    `gorm:"column:ignored_at"                                          json:"ignored_at"`
	Grades      []grade.Grade `gorm:"foreignKey:CallID"                                          json:"-"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"                           json:"created_at"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;autoUpdateTime"                           json:"updated_at"`
}

func (Call) TableName() string {
	return "calls"
}

func (c *Call) HasTranscript() bool {
	return c.Transcript != nil && *c.Transcript != ""
}

// Classification is the derived state of a call. It is never stored.
type Classification struct {
	CallID        uint          `json:"call_id"`
	DisplayStatus DisplayStatus `json:"display_status"`
	GradingStatus GradingStatus `json:"grading_status"`
}

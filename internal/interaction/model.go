package interaction

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActionOpened      = "opened"
	ActionTranscribed = "transcribed"
	ActionSkipped     = "skipped"
	ActionGraded      = "graded"
	ActionAbandoned   = "abandoned"
)

// TerminalActions conclude a review session for a (call, user) pair.
var TerminalActions = []string{ActionGraded, ActionSkipped, ActionAbandoned}

var validActions = map[string]struct{}{
	ActionOpened:      {},
	ActionTranscribed: {},
	ActionSkipped:     {},
	ActionGraded:      {},
	ActionAbandoned:   {},
}

// CallInteraction is an immutable event. Rows are inserted and never updated.
type CallInteraction struct {
	ID          uint           `gorm:"column:id;primaryKey;autoIncrement"                                  json:"id"`
	CallID      uint           `gorm:"column:call_id;not null;index:idx_call_interactions_pair,priority:1" json:"call_id"`
	UserID      uint           `gorm:"column:user_id;not null;index:idx_call_interactions_pair,priority:2" json:"user_id"`
	Action      string         `gorm:"column:action;type:varchar(20);not null;index"                       json:"action"`
	PageSeconds *int           `gorm:"column:page_seconds"                                                 json:"page_seconds"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb"                                          json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index"                                    json:"created_at"`
}

func (CallInteraction) TableName() string {
	return "call_interactions"
}

func IsValidAction(action string) bool {
	_, ok := validActions[action]
	return ok
}

func IsTerminalAction(action string) bool {
	for _, terminal := range TerminalActions {
		if action == terminal {
			return true
		}
	}

	return false
}

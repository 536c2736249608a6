package deadletter

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)

// EventDeadLetter holds a consumed message whose processing failed. A topic
// and key pair is stored once; a repeated failure refreshes the row.
type EventDeadLetter struct {
	ID          uint           `gorm:"column:id;primaryKey;autoIncrement"`
	Topic       string         `gorm:"column:topic;type:varchar(255);not null;uniqueIndex:idx_event_dead_letters_topic_key"`
	MessageKey  string         `gorm:"column:message_key;type:varchar(255);not null;uniqueIndex:idx_event_dead_letters_topic_key"`
	Msg         datatypes.JSON `gorm:"column:msg;type:jsonb;not null"`
	Error       string         `gorm:"column:error;type:text;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"`
	RetryCount  int            `gorm:"column:retry_count;type:int;default:0;not null"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (EventDeadLetter) TableName() string {
	return "event_dead_letters"
}

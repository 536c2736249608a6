package settings

import "time"

type Setting struct {
	Key       string    `gorm:"column:key;type:varchar(255);primaryKey" json:"key"`
	Value     string    `gorm:"column:value;type:text;not null"         json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"        json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

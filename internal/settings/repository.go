package settings

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidSettingsResult = errors.New("invalid result type, it should be map of setting values")

type SettingsRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *SettingsRepository {
	return &SettingsRepository{
		DBConn:         dbConn,
		CircuitBreaker: database.NewCircuitBreaker[any](),
	}
}

// GetValues returns the stored values of keys. Missing keys are absent from the map.
func (settingsRepository *SettingsRepository) GetValues(ctx context.Context, keys ...string) (map[string]string, error) {
	result, err := settingsRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []Setting

		err := settingsRepository.DBConn.WithContext(ctx).
			Where("key IN ?", keys).
			Find(&rows).Error
		if err != nil {
			logging.Logger.Error("[GetValues] Failed to fetch settings",
				zap.Strings("keys", keys),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		values := make(map[string]string, len(rows))
		for _, row := range rows {
			values[row.Key] = row.Value
		}

		return values, nil
	})
	if err != nil {
		return nil, err
	}

	values, ok := result.(map[string]string)
	if !ok {
		return nil, ErrInvalidSettingsResult
	}

	return values, nil
}

// Set upserts one setting. Settings are owned by the admin collaborator; this
// is used by seeding and tests.
func (settingsRepository *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := settingsRepository.CircuitBreaker.Execute(func() (any, error) {
		err := settingsRepository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).
			Create(&Setting{Key: key, Value: value}).Error
		if err != nil {
			logging.Logger.Error("[Set] Failed to upsert setting",
				zap.String("key", key),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

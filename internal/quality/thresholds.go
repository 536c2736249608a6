package quality

import (
	"context"
	"strconv"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"go.uber.org/zap"
)

const (
	FlagThresholdKey       = "grading_quality_flag_threshold"
	SuspiciousThresholdKey = "grading_quality_suspicious_threshold"
)

// Thresholds are playback ratio percentages with Flag < Warn.
type Thresholds struct {
	Flag float64 `json:"flag_threshold"`
	Warn float64 `json:"warn_threshold"`
}

type SettingsReader interface {
	GetValues(ctx context.Context, keys ...string) (map[string]string, error)
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Flag: config.Conf.GradingQualityFlagThreshold,
		Warn: config.Conf.GradingQualitySuspiciousThreshold,
	}
}

func (t Thresholds) valid() bool {
	return t.Flag >= 0 && t.Warn <= 100 && t.Flag < t.Warn
}

// LoadThresholds reads both thresholds from the settings store. Absent or
// unparsable values use the defaults, and an inverted pair falls back to the
// defaults as a whole. A store error is logged and also yields the defaults.
func LoadThresholds(ctx context.Context, reader SettingsReader) Thresholds {
	defaults := DefaultThresholds()

	values, err := reader.GetValues(ctx, FlagThresholdKey, SuspiciousThresholdKey)
	if err != nil {
		logging.Logger.Warn("[LoadThresholds] Using default quality thresholds",
			zap.String("error", err.Error()),
		)

		return defaults
	}

	thresholds := Thresholds{
		Flag: parseThreshold(values, FlagThresholdKey, defaults.Flag),
		Warn: parseThreshold(values, SuspiciousThresholdKey, defaults.Warn),
	}

	if !thresholds.valid() {
		logging.Logger.Warn("[LoadThresholds] Ignoring inconsistent quality thresholds",
			zap.Float64("flag_threshold", thresholds.Flag),
			zap.Float64("warn_threshold", thresholds.Warn),
		)

		return defaults
	}

	return thresholds
}

func parseThreshold(values map[string]string, key string, fallback float64) float64 {
	raw, ok := values[key]
	if !ok {
		return fallback
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		logging.Logger.Warn("[LoadThresholds] Unparsable quality threshold",
			zap.String("key", key),
			zap.String("value", raw),
		)

		return fallback
	}

	return parsed
}

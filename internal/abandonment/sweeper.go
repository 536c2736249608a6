package abandonment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const MetadataSource = "abandonment_sweeper"

type InteractionStore interface {
	FindStaleOpened(ctx context.Context, cutoff time.Time) ([]interaction.CallInteraction, error)
	Append(ctx context.Context, event *interaction.CallInteraction) (*interaction.CallInteraction, error)
}

// Publisher announces flagged sessions. Publishing is best effort and never
// changes the sweep outcome of a row.
type Publisher interface {
	PublishAbandoned(ctx context.Context, event *interaction.CallInteraction) error
}

// SweepResult counts one sweep. Scanned is the number of candidate rows;
// older opens of a pair that is already being flagged are folded into it.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Flagged int `json:"flagged"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Sweeper struct {
	Store      InteractionStore
	Locker     Locker
	Publisher  Publisher
	WorkerPool *ants.Pool
	Staleness  time.Duration
	Now        func() time.Time
}

type pairKey struct {
	callID uint
	userID uint
}

// NewSweeper wires the sweeper to the interaction log. redisClient may be nil,
// in which case overlapping sweeps are only prevented inside this process.
func NewSweeper(dbConn *gorm.DB, redisClient *redis.Client, publisher Publisher) (*Sweeper, error) {
	workerPool, err := ants.NewPool(config.Conf.SweepPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	var locker Locker = &LocalLocker{}
	if redisClient != nil {
		locker = NewRedisLocker(redisClient)
	}

	return &Sweeper{
		Store:      interaction.NewRepository(dbConn),
		Locker:     locker,
		Publisher:  publisher,
		WorkerPool: workerPool,
		Staleness:  time.Duration(config.Conf.AbandonmentStalenessHours) * time.Hour,
		Now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (sweeper *Sweeper) Close() {
	sweeper.WorkerPool.Release()
}

// Sweep appends one abandoned event for every (call, user) pair whose latest
// stale open has no terminal action at or after it. Row problems are counted,
// only a failing candidate query is returned as an error.
func (sweeper *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	timer := prometheus.NewTimer(prometheusCallgrade.AbandonmentSweepDuration)
	defer timer.ObserveDuration()

	release, acquired, err := sweeper.Locker.TryAcquire(ctx)

	switch {
	case err != nil:
		logging.Logger.Warn("[Sweep] Could not take sweep lock, sweeping anyway",
			zap.String("error", err.Error()),
		)
	case !acquired:
		logging.Logger.Info("[Sweep] Another sweep holds the lock, skipping")
		return SweepResult{}, nil
	default:
		defer release()
	}

	now := sweeper.Now()
	cutoff := now.Add(-sweeper.Staleness)

	candidates, err := sweeper.Store.FindStaleOpened(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("find stale opened interactions: %w", err)
	}

	result := SweepResult{Scanned: len(candidates)}

	var (
		flagged   atomic.Int64
		failed    atomic.Int64
		waitGroup sync.WaitGroup
	)

	seen := make(map[pairKey]struct{}, len(candidates))

	for idx := range candidates {
		opened := candidates[idx]

		if opened.CallID == 0 || opened.UserID == 0 {
			logging.Logger.Warn("[Sweep] Skipping malformed opened interaction",
				zap.Uint("interaction_id", opened.ID),
				zap.Uint("call_id", opened.CallID),
				zap.Uint("user_id", opened.UserID),
			)
			prometheusCallgrade.AbandonmentSweepRowFailures.WithLabelValues("skipped").Inc()

			result.Skipped++

			continue
		}

		key := pairKey{callID: opened.CallID, userID: opened.UserID}
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		waitGroup.Add(1)

		err := sweeper.WorkerPool.Submit(func() {
			defer waitGroup.Done()

			if sweeper.flag(ctx, &opened, now) {
				flagged.Add(1)
			} else {
				failed.Add(1)
			}
		})
		if err != nil {
			waitGroup.Done()
			failed.Add(1)

			logging.Logger.Error("[Sweep] Failed to submit row to sweep pool",
				zap.Uint("interaction_id", opened.ID),
				zap.String("error", err.Error()),
			)
		}
	}

	waitGroup.Wait()

	result.Flagged = int(flagged.Load())
	result.Failed = int(failed.Load())

	prometheusCallgrade.AbandonedInteractionsFlagged.Add(float64(result.Flagged))
	prometheusCallgrade.AbandonmentSweepRowFailures.WithLabelValues("failed").Add(float64(result.Failed))

	logging.Logger.Info("[Sweep] Abandonment sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("scanned", result.Scanned),
		zap.Int("flagged", result.Flagged),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// flag appends the abandoned event for one session and reports whether it was stored.
func (sweeper *Sweeper) flag(ctx context.Context, opened *interaction.CallInteraction, now time.Time) (stored bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("[flag] Panic while flagging interaction",
				zap.Uint("interaction_id", opened.ID),
				zap.Any("recover", r),
			)

			stored = false
		}
	}()

	metadata, err := json.Marshal(map[string]any{
		"source":                MetadataSource,
		"opened_interaction_id": opened.ID,
	})
	if err != nil {
		logging.Logger.Error("[flag] Failed to encode metadata", zap.String("error", err.Error()))
		return false
	}

	var pageSeconds *int

	if opened.PageSeconds != nil {
		value := *opened.PageSeconds
		pageSeconds = &value
	}

	abandoned, err := sweeper.Store.Append(ctx, &interaction.CallInteraction{
		CallID:      opened.CallID,
		UserID:      opened.UserID,
		Action:      interaction.ActionAbandoned,
		PageSeconds: pageSeconds,
		Metadata:    metadata,
		CreatedAt:   now,
	})
	if err != nil {
		logging.Logger.Error("[flag] Failed to append abandoned interaction",
			zap.Uint("interaction_id", opened.ID),
			zap.Uint("call_id", opened.CallID),
			zap.Uint("user_id", opened.UserID),
			zap.String("error", err.Error()),
		)

		return false
	}

	if sweeper.Publisher != nil {
		err = sweeper.Publisher.PublishAbandoned(ctx, abandoned)
		if err != nil {
			logging.Logger.Warn("[flag] Failed to publish abandoned interaction",
				zap.Uint("interaction_id", abandoned.ID),
				zap.String("error", err.Error()),
			)
		}
	}

	return true
}

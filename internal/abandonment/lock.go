package abandonment

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Locker guards a sweep against a concurrent one. release is nil when the
// lock was not acquired.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	Client         *redis.Client
	Key            string
	TTL            time.Duration
	CircuitBreaker *gobreaker.CircuitBreaker[bool]
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		Client:         client,
		Key:            config.Conf.AbandonmentLockKey,
		TTL:            time.Duration(config.Conf.AbandonmentLockTTL) * time.Second,
		CircuitBreaker: newRedisCircuitBreaker(),
	}
}

// newRedisCircuitBreaker only fails fast. The lock is best effort, so an open
// breaker is logged and never restarts the app.
func newRedisCircuitBreaker() *gobreaker.CircuitBreaker[bool] {
	settings := gobreaker.Settings{
		Name:     "redis",
		Interval: time.Duration(config.Conf.RedisIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.RedisConsecutiveFailsCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
		},
	}

	return gobreaker.NewCircuitBreaker[bool](settings)
}

func (l *RedisLocker) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()

	acquired, err := l.CircuitBreaker.Execute(func() (bool, error) {
		return l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	})
	if err != nil {
		return nil, false, err
	}

	if !acquired {
		return nil, false, nil
	}

	release := func() {
		// The sweep context may already be done; releasing must still happen.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		err := releaseScript.Run(releaseCtx, l.Client, []string{l.Key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			logging.Logger.Warn("[TryAcquire] Failed to release sweep lock",
				zap.String("key", l.Key),
				zap.String("error", err.Error()),
			)
		}
	}

	return release, true, nil
}

// LocalLocker is the in-process fallback when Redis is not configured.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) TryAcquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}

	return l.mu.Unlock, true, nil
}

package healthchecker

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/circuitbreak"
	"github.com/stretchr/testify/require"
)

func TestMonitorCancelsOnCircuitBreak(t *testing.T) {
	circuitbreak.Init()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := NewService(cancel)

	done := make(chan struct{})

	go func() {
		checker.Monitor(context.Background())
		close(done)
	}()

	circuitbreak.TriggerError(circuitbreak.DBService)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not react to circuit break")
	}

	require.Error(t, appCtx.Err())
	require.Equal(t, circuitbreak.DBService, checker.ErrorService)
}

func TestMonitorStopsWithContext(t *testing.T) {
	circuitbreak.Init()

	canceled := false
	checker := NewService(func() { canceled = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker.Monitor(ctx)

	require.False(t, canceled)
	require.Empty(t, checker.ErrorService)
}

func TestCheckWaitsForRecovery(t *testing.T) {
	attempts := 0

	checker := &Healthchecker{
		ErrorService: circuitbreak.MinioService,
		Interval:     time.Millisecond,
		Checks: map[string]CheckFunc{
			circuitbreak.MinioService: func() error {
				attempts++
				if attempts < 3 {
					return errors.New("bucket unreachable")
				}

				return nil
			},
		},
	}

	checker.Check()

	require.Equal(t, 3, attempts)
}

func TestCheckReturnsWithoutFailedService(t *testing.T) {
	checker := &Healthchecker{Interval: time.Hour}

	checker.Check()
}

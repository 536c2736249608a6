package deadletter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/testdb"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const gradeTopic = "callgrade-grades-submitted"

type deadLetterFixture struct {
	db      *gorm.DB
	service *DeadLetterService
	now     time.Time
}

func newDeadLetterFixture(t *testing.T, handlers map[string]Handler) *deadLetterFixture {
	t.Helper()

	db := testdb.New(t, &EventDeadLetter{})
	fixture := &deadLetterFixture{
		db:  db,
		now: time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	repository := NewRepository(db)
	repository.MaxRetries = 3
	repository.Limit = 10
	repository.RetryDelay = time.Minute
	repository.ClaimTTL = 10 * time.Minute

	fixture.service = &DeadLetterService{
		DLRepository: repository,
		Handlers:     handlers,
		Now:          func() time.Time { return fixture.now },
	}

	return fixture
}

func (f *deadLetterFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *deadLetterFixture) stored(t *testing.T) []EventDeadLetter {
	t.Helper()

	var records []EventDeadLetter
	require.NoError(t, f.db.Order("id ASC").Find(&records).Error)

	return records
}

func TestMarkRefreshesExistingRecord(t *testing.T) {
	fixture := newDeadLetterFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))
	fixture.advance(time.Minute)
	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "broker down"))
	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "43", []byte(`{"grade_id":43}`), "db timeout"))

	records := fixture.stored(t)
	require.Len(t, records, 2)
	require.Equal(t, "broker down", records[0].Error)
	require.Equal(t, StatusPending, records[0].Status)
	require.True(t, fixture.now.Equal(*records[0].LastRetryAt))
}

func TestPendingWaitsForRetryDelay(t *testing.T) {
	fixture := newDeadLetterFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	fixture.advance(time.Minute)

	pending, err = fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "42", pending[0].MessageKey)
}

func TestReprocessDeletesRecoveredRecord(t *testing.T) {
	var received atomic.Value

	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(_ context.Context, key, _ []byte) error {
			received.Store(string(key))
			return nil
		},
	})
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))
	fixture.advance(2 * time.Minute)

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	fixture.service.Reprocess(ctx, &pending[0])

	require.Equal(t, "42", received.Load())
	require.Empty(t, fixture.stored(t))
}

func TestReprocessCountsFailures(t *testing.T) {
	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(context.Context, []byte, []byte) error {
			return errors.New("grade still locked")
		},
	})
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))
	require.NoError(t, fixture.service.Mark(ctx, "unknown-topic", "9", []byte(`{}`), "db timeout"))

	for range 3 {
		fixture.advance(2 * time.Minute)

		pending, err := fixture.service.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)

		for idx := range pending {
			fixture.service.Reprocess(ctx, &pending[idx])
		}
	}

	records := fixture.stored(t)
	require.Len(t, records, 2)
	require.Equal(t, 3, records[0].RetryCount)
	require.Equal(t, "grade still locked", records[0].Error)
	require.Equal(t, StatusPending, records[0].Status)
	require.Contains(t, records[1].Error, ErrNoHandler.Error())

	fixture.advance(2 * time.Minute)

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestReprocessSkipsClaimedRecord(t *testing.T) {
	calls := atomic.Int32{}

	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(context.Context, []byte, []byte) error {
			calls.Add(1)
			return nil
		},
	})
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))
	fixture.advance(2 * time.Minute)

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)

	claimed, err := fixture.service.DLRepository.Claim(ctx, &EventDeadLetter{ID: pending[0].ID}, fixture.now)
	require.NoError(t, err)
	require.True(t, claimed)

	fixture.service.Reprocess(ctx, &pending[0])

	require.Zero(t, calls.Load())
	require.Equal(t, StatusInProgress, fixture.stored(t)[0].Status)
}

func TestPendingReleasesStaleClaims(t *testing.T) {
	calls := atomic.Int32{}

	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(context.Context, []byte, []byte) error {
			calls.Add(1)
			return nil
		},
	})
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "0-42", []byte(`{"grade_id":42}`), "db timeout"))
	fixture.advance(2 * time.Minute)

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// A worker that claimed the record and died never records the outcome.
	claimed, err := fixture.service.DLRepository.Claim(ctx, &pending[0], fixture.now)
	require.NoError(t, err)
	require.True(t, claimed)

	fixture.advance(5 * time.Minute)

	pending, err = fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Equal(t, StatusInProgress, fixture.stored(t)[0].Status)

	fixture.advance(10 * time.Minute)

	pending, err = fixture.service.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	fixture.service.Reprocess(ctx, &pending[0])

	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, fixture.stored(t))
}

func TestReprocessRecoversHandlerPanic(t *testing.T) {
	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(context.Context, []byte, []byte) error {
			panic("nil grade")
		},
	})
	ctx := context.Background()

	require.NoError(t, fixture.service.Mark(ctx, gradeTopic, "42", []byte(`{"grade_id":42}`), "db timeout"))
	fixture.advance(2 * time.Minute)

	pending, err := fixture.service.Pending(ctx)
	require.NoError(t, err)

	fixture.service.Reprocess(ctx, &pending[0])

	records := fixture.stored(t)
	require.Equal(t, 1, records[0].RetryCount)
	require.Contains(t, records[0].Error, "nil grade")
}

func TestWorkerProcessesPendingBatch(t *testing.T) {
	calls := atomic.Int32{}

	fixture := newDeadLetterFixture(t, map[string]Handler{
		gradeTopic: func(context.Context, []byte, []byte) error {
			calls.Add(1)
			return nil
		},
	})
	ctx := context.Background()

	for _, key := range []string{"1", "2", "3"} {
		require.NoError(t, fixture.service.Mark(ctx, gradeTopic, key, []byte(`{}`), "db timeout"))
	}

	fixture.advance(2 * time.Minute)

	pool, err := ants.NewPool(2)
	require.NoError(t, err)

	worker := &DeadLetterWorker{WorkerPool: pool, DLService: fixture.service, Interval: time.Minute}
	defer worker.Close()

	require.Equal(t, 3, worker.ProcessPending(ctx))
	require.Equal(t, int32(3), calls.Load())
	require.Empty(t, fixture.stored(t))
}

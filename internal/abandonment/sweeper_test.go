package abandonment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/testdb"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
)

var errInsertFailed = errors.New("insert failed")

type failingStore struct {
	InteractionStore
	failCallID uint
	failQuery  bool
}

func (s *failingStore) FindStaleOpened(ctx context.Context, cutoff time.Time) ([]interaction.CallInteraction, error) {
	if s.failQuery {
		return nil, errors.New("database unreachable")
	}

	return s.InteractionStore.FindStaleOpened(ctx, cutoff)
}

func (s *failingStore) Append(
	ctx context.Context,
	event *interaction.CallInteraction,
) (*interaction.CallInteraction, error) {
	if event.CallID == s.failCallID {
		return nil, errInsertFailed
	}

	return s.InteractionStore.Append(ctx, event)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []interaction.CallInteraction
}

func (p *recordingPublisher) PublishAbandoned(_ context.Context, event *interaction.CallInteraction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, *event)

	return nil
}

type erroringLocker struct{}

func (erroringLocker) TryAcquire(context.Context) (func(), bool, error) {
	return nil, false, errors.New("redis unreachable")
}

type sweepFixture struct {
	sweeper    *Sweeper
	repository *interaction.InteractionRepository
	now        time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	db := testdb.New(t, &interaction.CallInteraction{})

	workerPool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(workerPool.Release)

	repository := interaction.NewRepository(db)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	return &sweepFixture{
		sweeper: &Sweeper{
			Store:      repository,
			Locker:     &LocalLocker{},
			WorkerPool: workerPool,
			Staleness:  24 * time.Hour,
			Now:        func() time.Time { return now },
		},
		repository: repository,
		now:        now,
	}
}

func (f *sweepFixture) open(t *testing.T, callID, userID uint, age time.Duration, pageSeconds *int) *interaction.CallInteraction {
	t.Helper()

	return f.appendEvent(t, callID, userID, interaction.ActionOpened, age, pageSeconds)
}

func (f *sweepFixture) appendEvent(
	t *testing.T,
	callID, userID uint,
	action string,
	age time.Duration,
	pageSeconds *int,
) *interaction.CallInteraction {
	t.Helper()

	event, err := f.repository.Append(context.Background(), &interaction.CallInteraction{
		CallID:      callID,
		UserID:      userID,
		Action:      action,
		PageSeconds: pageSeconds,
		CreatedAt:   f.now.Add(-age),
	})
	require.NoError(t, err)

	return event
}

func (f *sweepFixture) abandonedFor(t *testing.T, callID uint) []interaction.CallInteraction {
	t.Helper()

	history, err := f.repository.ListByCall(context.Background(), callID)
	require.NoError(t, err)

	abandoned := []interaction.CallInteraction{}

	for _, event := range history {
		if event.Action == interaction.ActionAbandoned {
			abandoned = append(abandoned, event)
		}
	}

	return abandoned
}

func intPtr(value int) *int {
	return &value
}

func TestSweepFlagsStaleSessionOnce(t *testing.T) {
	fixture := newSweepFixture(t)
	ctx := context.Background()

	opened := fixture.open(t, 1, 5, 26*time.Hour, intPtr(420))

	result, err := fixture.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 1, Flagged: 1}, result)

	abandoned := fixture.abandonedFor(t, 1)
	require.Len(t, abandoned, 1)
	require.Equal(t, uint(5), abandoned[0].UserID)
	require.Equal(t, 420, *abandoned[0].PageSeconds)
	require.True(t, abandoned[0].CreatedAt.Equal(fixture.now))

	var metadata struct {
		Source              string `json:"source"`
		OpenedInteractionID uint   `json:"opened_interaction_id"`
	}
	require.NoError(t, json.Unmarshal(abandoned[0].Metadata, &metadata))
	require.Equal(t, MetadataSource, metadata.Source)
	require.Equal(t, opened.ID, metadata.OpenedInteractionID)

	second, err := fixture.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, second)
	require.Len(t, fixture.abandonedFor(t, 1), 1)
}

func TestSweepStalenessBoundary(t *testing.T) {
	fixture := newSweepFixture(t)

	fixture.open(t, 1, 5, 24*time.Hour, nil)
	fixture.open(t, 2, 5, 24*time.Hour-time.Second, nil)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Flagged)

	boundary := fixture.abandonedFor(t, 1)
	require.Len(t, boundary, 1)
	require.Nil(t, boundary[0].PageSeconds)
	require.Empty(t, fixture.abandonedFor(t, 2))
}

func TestSweepRespectsTerminalActions(t *testing.T) {
	fixture := newSweepFixture(t)

	fixture.open(t, 1, 5, 30*time.Hour, nil)
	fixture.appendEvent(t, 1, 5, interaction.ActionGraded, 29*time.Hour, nil)

	fixture.open(t, 2, 5, 30*time.Hour, nil)
	fixture.appendEvent(t, 2, 5, interaction.ActionSkipped, 2*time.Hour, nil)

	// Another reviewer concluding the call does not close this reviewer's session.
	fixture.open(t, 3, 5, 30*time.Hour, nil)
	fixture.appendEvent(t, 3, 6, interaction.ActionGraded, 29*time.Hour, nil)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 1, Flagged: 1}, result)
	require.Len(t, fixture.abandonedFor(t, 3), 1)
}

func TestSweepKeepsLatestOpenPerPair(t *testing.T) {
	fixture := newSweepFixture(t)

	fixture.open(t, 1, 5, 50*time.Hour, intPtr(10))
	latest := fixture.open(t, 1, 5, 30*time.Hour, intPtr(60))

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 2, Flagged: 1}, result)

	abandoned := fixture.abandonedFor(t, 1)
	require.Len(t, abandoned, 1)
	require.Equal(t, 60, *abandoned[0].PageSeconds)

	var metadata struct {
		OpenedInteractionID uint `json:"opened_interaction_id"`
	}
	require.NoError(t, json.Unmarshal(abandoned[0].Metadata, &metadata))
	require.Equal(t, latest.ID, metadata.OpenedInteractionID)
}

func TestSweepIsolatesRowFailures(t *testing.T) {
	fixture := newSweepFixture(t)
	fixture.sweeper.Store = &failingStore{InteractionStore: fixture.repository, failCallID: 2}

	fixture.open(t, 0, 5, 30*time.Hour, nil)
	fixture.open(t, 1, 0, 30*time.Hour, nil)
	fixture.open(t, 2, 5, 30*time.Hour, nil)
	fixture.open(t, 3, 5, 30*time.Hour, nil)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 4, Flagged: 1, Skipped: 2, Failed: 1}, result)
	require.Len(t, fixture.abandonedFor(t, 3), 1)
	require.Empty(t, fixture.abandonedFor(t, 2))

	// A later sweep picks the failed row up again.
	fixture.sweeper.Store = fixture.repository

	retry, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, retry.Flagged)
	require.Equal(t, 2, retry.Skipped)
	require.Len(t, fixture.abandonedFor(t, 2), 1)
}

func TestSweepSurfacesCandidateQueryFailure(t *testing.T) {
	fixture := newSweepFixture(t)
	fixture.sweeper.Store = &failingStore{InteractionStore: fixture.repository, failQuery: true}

	_, err := fixture.sweeper.Sweep(context.Background())
	require.Error(t, err)
}

func TestSweepPublishesFlaggedEvents(t *testing.T) {
	fixture := newSweepFixture(t)
	publisher := &recordingPublisher{}
	fixture.sweeper.Publisher = publisher

	fixture.open(t, 1, 5, 26*time.Hour, nil)
	fixture.open(t, 2, 7, 26*time.Hour, nil)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Flagged)
	require.Len(t, publisher.events, 2)

	for _, event := range publisher.events {
		require.Equal(t, interaction.ActionAbandoned, event.Action)
		require.NotZero(t, event.ID)
	}
}

func TestSweepSkipsWhileLockHeld(t *testing.T) {
	fixture := newSweepFixture(t)
	fixture.open(t, 1, 5, 26*time.Hour, nil)

	release, acquired, err := fixture.sweeper.Locker.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, result)
	require.Empty(t, fixture.abandonedFor(t, 1))

	release()

	result, err = fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Flagged)
}

func TestSweepProceedsWhenLockUnavailable(t *testing.T) {
	fixture := newSweepFixture(t)
	fixture.sweeper.Locker = erroringLocker{}
	fixture.open(t, 1, 5, 26*time.Hour, nil)

	result, err := fixture.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Flagged)
}

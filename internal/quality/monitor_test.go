package quality

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/settings"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/testdb"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var (
	rangeStart = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

type monitorFixture struct {
	db      *gorm.DB
	monitor *QualityMonitor
	calls   int
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	db := testdb.New(t, &call.Call{}, &grade.Grade{}, &grade.GradeCategoryScore{}, &settings.Setting{})

	return &monitorFixture{db: db, monitor: NewMonitor(db)}
}

func (f *monitorFixture) grade(
	t *testing.T,
	reviewerID uint,
	talkTime, playbackSeconds int,
	percentage *float64,
	status string,
	completedAt time.Time,
) {
	t.Helper()

	f.calls++

	record := call.Call{
		ExternalID: fmt.Sprintf("ext-%d", f.calls),
		DialStatus: call.DialAnswered,
		TalkTime:   talkTime,
	}
	require.NoError(t, f.db.Create(&record).Error)

	require.NoError(t, f.db.Create(&grade.Grade{
		CallID:             record.ID,
		UserID:             reviewerID,
		Status:             status,
		Percentage:         percentage,
		PlaybackSeconds:    playbackSeconds,
		GradingCompletedAt: &completedAt,
	}).Error)
}

func percent(value float64) *float64 {
	return &value
}

func TestReviewsRequireRange(t *testing.T) {
	fixture := newMonitorFixture(t)
	ctx := context.Background()

	_, _, err := fixture.monitor.Reviews(ctx, DateRange{})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = fixture.monitor.ReviewerSummaries(ctx, DateRange{From: rangeEnd, To: rangeStart})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = fixture.monitor.Reviews(ctx, DateRange{From: rangeStart, To: rangeStart})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestReviewerSummaries(t *testing.T) {
	fixture := newMonitorFixture(t)
	ctx := context.Background()
	inRange := rangeStart.Add(48 * time.Hour)

	// Reviewer 1: flagged, warned, ok and one call without talk time.
	fixture.grade(t, 1, 300, 30, percent(80), grade.StatusSubmitted, inRange)
	fixture.grade(t, 1, 100, 40, percent(60), grade.StatusSubmitted, inRange)
	fixture.grade(t, 1, 100, 90, nil, grade.StatusSubmitted, inRange)
	fixture.grade(t, 1, 0, 90, percent(70), grade.StatusSubmitted, inRange)

	// Reviewer 2: one ok grade inside the range, the rest must be ignored.
	fixture.grade(t, 2, 60, 60, percent(95), grade.StatusSubmitted, inRange)
	fixture.grade(t, 2, 60, 1, percent(10), grade.StatusDraft, inRange)
	fixture.grade(t, 2, 60, 1, percent(10), grade.StatusSubmitted, rangeEnd)
	fixture.grade(t, 2, 60, 1, percent(10), grade.StatusSubmitted, rangeStart.Add(-time.Second))

	summaries, thresholds, err := fixture.monitor.ReviewerSummaries(ctx, DateRange{From: rangeStart, To: rangeEnd})
	require.NoError(t, err)
	require.Equal(t, Thresholds{Flag: 25, Warn: 50}, thresholds)
	require.Len(t, summaries, 2)

	first := summaries[0]
	require.Equal(t, uint(1), first.ReviewerID)
	require.Equal(t, 4, first.Grades)
	require.Equal(t, 1, first.Flagged)
	require.Equal(t, 1, first.Warned)
	require.InDelta(t, 70.0, *first.AveragePercentage, 1e-9)
	require.InDelta(t, 46.7, *first.AverageRatio, 1e-9)

	second := summaries[1]
	require.Equal(t, uint(2), second.ReviewerID)
	require.Equal(t, 1, second.Grades)
	require.Zero(t, second.Flagged)
	require.InDelta(t, 100.0, *second.AverageRatio, 1e-9)
}

func TestReviewsUseStoredThresholds(t *testing.T) {
	fixture := newMonitorFixture(t)
	ctx := context.Background()

	repository := settings.NewRepository(fixture.db)
	require.NoError(t, repository.Set(ctx, FlagThresholdKey, "5"))
	require.NoError(t, repository.Set(ctx, SuspiciousThresholdKey, "15"))

	fixture.grade(t, 1, 300, 30, percent(80), grade.StatusSubmitted, rangeStart)
	fixture.grade(t, 1, 0, 0, percent(80), grade.StatusSubmitted, rangeStart)

	reviews, thresholds, err := fixture.monitor.Reviews(ctx, DateRange{From: rangeStart, To: rangeEnd})
	require.NoError(t, err)
	require.Equal(t, Thresholds{Flag: 5, Warn: 15}, thresholds)
	require.Len(t, reviews, 2)
	require.Equal(t, ClassificationWarned, reviews[0].Classification)
	require.Equal(t, "10.0%", reviews[0].RatioDisplay)
	require.Nil(t, reviews[1].Ratio)
	require.Equal(t, ClassificationUnknown, reviews[1].Classification)
	require.Equal(t, MissingRatio, reviews[1].RatioDisplay)
}

type fakeUploader struct {
	objectKey string
	size      int
	err       error
}

func (f *fakeUploader) Upload(_ context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	f.objectKey = objectKey
	f.size = buffer.Len()

	return "https://storage.local/quality/" + objectKey, nil
}

func TestExportAuditWorkbook(t *testing.T) {
	fixture := newMonitorFixture(t)
	ctx := context.Background()

	fixture.grade(t, 3, 300, 30, percent(80), grade.StatusSubmitted, rangeStart)
	fixture.grade(t, 3, 0, 0, nil, grade.StatusSubmitted, rangeStart)

	buffer, err := fixture.monitor.ExportAudit(ctx, DateRange{From: rangeStart, To: rangeEnd})
	require.NoError(t, err)

	workbook, err := excelize.OpenReader(buffer)
	require.NoError(t, err)

	defer func() { _ = workbook.Close() }()

	require.Equal(t, []string{ReviewersSheet, GradesSheet}, workbook.GetSheetList())

	reviewerSheet, err := workbook.GetRows(ReviewersSheet)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "2", "80", "10.0%", "1", "0"}, reviewerSheet[2])

	gradeSheet, err := workbook.GetRows(GradesSheet)
	require.NoError(t, err)
	require.Len(t, gradeSheet, 3)
	require.Equal(t, "flagged", gradeSheet[1][8])
	require.Equal(t, MissingRatio, gradeSheet[2][7])
	require.Equal(t, "unknown", gradeSheet[2][8])
}

func TestUploadAudit(t *testing.T) {
	fixture := newMonitorFixture(t)
	ctx := context.Background()
	dateRange := DateRange{From: rangeStart, To: rangeEnd}

	uploader := &fakeUploader{}

	url, err := fixture.monitor.UploadAudit(ctx, dateRange, uploader)
	require.NoError(t, err)
	require.Contains(t, uploader.objectKey, "quality-audit_20250501_20250601_")
	require.Positive(t, uploader.size)
	require.Equal(t, "https://storage.local/quality/"+uploader.objectKey, url)

	_, err = fixture.monitor.UploadAudit(ctx, dateRange, &fakeUploader{err: errors.New("bucket missing")})
	require.Error(t, err)
}

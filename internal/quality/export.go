package quality

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	ReviewersSheet = "Reviewers"
	GradesSheet    = "Grades"
)

var (
	reviewerHeader = []any{
		"Reviewer ID", "Grades", "Average %", "Average playback ratio", "Flagged", "Warned",
	}
	gradeHeader = []any{
		"Grade ID", "Call ID", "Reviewer ID", "Completed at", "Percentage",
		"Talk time (s)", "Playback (s)", "Playback ratio", "Classification",
	}
)

// Uploader stores an export and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error)
}

// ExportAudit renders the reviews of dateRange as an xlsx workbook with a
// Reviewers sheet and a Grades sheet.
func (monitor *QualityMonitor) ExportAudit(ctx context.Context, dateRange DateRange) (*bytes.Buffer, error) {
	reviews, thresholds, err := monitor.Reviews(ctx, dateRange)
	if err != nil {
		return nil, err
	}

	return RenderAudit(reviews, Summarize(reviews), thresholds)
}

// UploadAudit exports dateRange and stores the workbook through uploader.
func (monitor *QualityMonitor) UploadAudit(
	ctx context.Context,
	dateRange DateRange,
	uploader Uploader,
) (string, error) {
	buffer, err := monitor.ExportAudit(ctx, dateRange)
	if err != nil {
		return "", err
	}

	objectKey := AuditObjectKey(dateRange)

	url, err := uploader.Upload(ctx, buffer, objectKey)
	if err != nil {
		return "", fmt.Errorf("upload quality audit %s: %w", objectKey, err)
	}

	logging.Logger.Info("[UploadAudit] Quality audit uploaded",
		zap.String("object_key", objectKey),
		zap.String("url", url),
	)

	return url, nil
}

func AuditObjectKey(dateRange DateRange) string {
	return fmt.Sprintf("quality-audit_%s_%s_%s.xlsx",
		dateRange.From.UTC().Format("20060102"),
		dateRange.To.UTC().Format("20060102"),
		uuid.New().String(),
	)
}

func RenderAudit(reviews []Review, summaries []ReviewerSummary, thresholds Thresholds) (*bytes.Buffer, error) {
	file := excelize.NewFile()

	defer func() {
		err := file.Close()
		if err != nil {
			logging.Logger.Warn("[RenderAudit] Failed to close workbook", zap.String("error", err.Error()))
		}
	}()

	err := file.SetSheetName("Sheet1", ReviewersSheet)
	if err != nil {
		return nil, err
	}

	_, err = file.NewSheet(GradesSheet)
	if err != nil {
		return nil, err
	}

	err = writeRows(file, ReviewersSheet, reviewerRows(summaries, thresholds))
	if err != nil {
		return nil, err
	}

	err = writeRows(file, GradesSheet, gradeRows(reviews))
	if err != nil {
		return nil, err
	}

	return file.WriteToBuffer()
}

func reviewerRows(summaries []ReviewerSummary, thresholds Thresholds) [][]any {
	rows := [][]any{
		{"Flag threshold", thresholds.Flag, "Warn threshold", thresholds.Warn},
		reviewerHeader,
	}

	for _, summary := range summaries {
		rows = append(rows, []any{
			summary.ReviewerID,
			summary.Grades,
			optional(summary.AveragePercentage),
			FormatRatio(summary.AverageRatio),
			summary.Flagged,
			summary.Warned,
		})
	}

	return rows
}

func gradeRows(reviews []Review) [][]any {
	rows := [][]any{gradeHeader}

	for _, review := range reviews {
		rows = append(rows, []any{
			review.GradeID,
			review.CallID,
			review.ReviewerID,
			review.CompletedAt.UTC().Format(time.RFC3339),
			optional(review.Percentage),
			review.TalkTime,
			review.PlaybackSeconds,
			review.RatioDisplay,
			string(review.Classification),
		})
	}

	return rows
}

func optional(value *float64) any {
	if value == nil {
		return MissingRatio
	}

	return *value
}

func writeRows(file *excelize.File, sheet string, rows [][]any) error {
	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			return err
		}

		err = file.SetSheetRow(sheet, cell, &row)
		if err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, idx+1, err)
		}
	}

	return nil
}

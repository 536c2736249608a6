package call

import (
	"fmt"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"gorm.io/gorm"
)

// dialStatusExpr folds ASCII letters only. Postgres folds by the column
// collation, so it is pinned to "C"; SQLite LOWER is ASCII-only already.
func dialStatusExpr(dialect string) string {
	if dialect == "postgres" {
		return `LOWER(TRIM(calls.dial_status) COLLATE "C")`
	}

	return "LOWER(TRIM(calls.dial_status))"
}

// displayStatusExpr renders dialRules and talkTimeBuckets as a SQL CASE over the calls table.
func displayStatusExpr(dialect string) string {
	var builder strings.Builder

	dialStatus := dialStatusExpr(dialect)

	builder.WriteString("(CASE")

	for _, rule := range dialRules {
		quoted := make([]string, 0, len(rule.dialStatuses))
		for _, status := range rule.dialStatuses {
			quoted = append(quoted, sqlLiteral(status))
		}

		fmt.Fprintf(&builder, " WHEN %s IN (%s) THEN %s",
			dialStatus, strings.Join(quoted, ", "), sqlLiteral(string(rule.display)))
	}

	for _, bucket := range talkTimeBuckets {
		fmt.Fprintf(&builder, " WHEN calls.talk_time <= %d THEN %s",
			bucket.maxSeconds, sqlLiteral(string(bucket.display)))
	}

	fmt.Fprintf(&builder, " ELSE %s END)", sqlLiteral(string(DisplayConversation)))

	return builder.String()
}

// gradingStatusExpr is the set-based twin of GradingStatusOf.
func gradingStatusExpr() string {
	gradeExists := func(status string) string {
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM grades WHERE grades.call_id = calls.id AND grades.status = %s)",
			sqlLiteral(status),
		)
	}

	return fmt.Sprintf(
		"(CASE WHEN calls.transcript IS NULL OR calls.transcript = '' THEN %s WHEN %s THEN %s WHEN %s THEN %s ELSE %s END)",
		sqlLiteral(string(GradingNeedsProcessing)),
		gradeExists(grade.StatusSubmitted), sqlLiteral(string(GradingGraded)),
		gradeExists(grade.StatusDraft), sqlLiteral(string(GradingInProgress)),
		sqlLiteral(string(GradingReady)),
	)
}

// sqlLiteral quotes package constants; it is never fed user input.
func sqlLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// WithDisplayStatus keeps calls whose derived display status is one of statuses.
func WithDisplayStatus(statuses ...DisplayStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(statuses) == 0 {
			return db
		}

		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}

		return db.Where(displayStatusExpr(db.Dialector.Name())+" IN ?", values)
	}
}

// WithGradingStatus keeps calls whose derived grading status is one of statuses.
func WithGradingStatus(statuses ...GradingStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(statuses) == 0 {
			return db
		}

		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}

		return db.Where(gradingStatusExpr()+" IN ?", values)
	}
}

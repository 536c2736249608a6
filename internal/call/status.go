package call

import (
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
)

type DisplayStatus string

const (
	DisplayConversation   DisplayStatus = "conversation"
	DisplayShortCall      DisplayStatus = "short_call"
	DisplayNoConversation DisplayStatus = "no_conversation"
	DisplayVoicemail      DisplayStatus = "voicemail"
	DisplayMissed         DisplayStatus = "missed"
	DisplayAbandoned      DisplayStatus = "abandoned"
	DisplayBusy           DisplayStatus = "busy"
)

type GradingStatus string

const (
	GradingNeedsProcessing GradingStatus = "needs_processing"
	GradingReady           GradingStatus = "ready"
	GradingInProgress      GradingStatus = "in_progress"
	GradingGraded          GradingStatus = "graded"
)

// Talk time thresholds in seconds, inclusive upper bounds.
const (
	NoConversationMaxSeconds = 10
	ShortCallMaxSeconds      = 60
)

// dialRules map raw dial statuses straight to a display status. Anything not
// listed here is answered-like and falls through to talkTimeBuckets.
var dialRules = []struct {
	dialStatuses []string
	display      DisplayStatus
}{
	{[]string{DialVoicemail}, DisplayVoicemail},
	{[]string{DialNoAnswer, DialMissed}, DisplayMissed},
	{[]string{DialAbandoned}, DisplayAbandoned},
	{[]string{DialBusy}, DisplayBusy},
}

// talkTimeBuckets are checked in order; talk time above the last bound is a conversation.
var talkTimeBuckets = []struct {
	maxSeconds int
	display    DisplayStatus
}{
	{0, DisplayAbandoned},
	{NoConversationMaxSeconds, DisplayNoConversation},
	{ShortCallMaxSeconds, DisplayShortCall},
}

var (
	AllDisplayStatuses = []DisplayStatus{
		DisplayConversation, DisplayShortCall, DisplayNoConversation,
		DisplayVoicemail, DisplayMissed, DisplayAbandoned, DisplayBusy,
	}
	AllGradingStatuses = []GradingStatus{
		GradingNeedsProcessing, GradingReady, GradingInProgress, GradingGraded,
	}
)

// normalizeDialStatus must stay in step with the dial status expression in
// displayStatusExpr. Only ASCII letters are folded, as SQL LOWER does under
// the C collation.
func normalizeDialStatus(dialStatus string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}

		return r
	}, strings.Trim(dialStatus, " "))
}

// DisplayStatusOf derives the display bucket of a call. Unknown dial statuses
// are bucketed by talk time like answered calls.
func DisplayStatusOf(dialStatus string, talkTime int) DisplayStatus {
	normalized := normalizeDialStatus(dialStatus)

	for _, rule := range dialRules {
		for _, status := range rule.dialStatuses {
			if normalized == status {
				return rule.display
			}
		}
	}

	for _, bucket := range talkTimeBuckets {
		if talkTime <= bucket.maxSeconds {
			return bucket.display
		}
	}

	return DisplayConversation
}

// GradingStatusOf derives the review pipeline bucket. A missing transcript wins
// over any grade rows, and a submitted grade wins over drafts.
func GradingStatusOf(hasTranscript bool, grades []grade.Grade) GradingStatus {
	if !hasTranscript {
		return GradingNeedsProcessing
	}

	hasDraft := false

	for i := range grades {
		switch grades[i].Status {
		case grade.StatusSubmitted:
			return GradingGraded
		case grade.StatusDraft:
			hasDraft = true
		}
	}

	if hasDraft {
		return GradingInProgress
	}

	return GradingReady
}

// Classify derives both statuses for a call whose grades are loaded.
func Classify(c *Call) Classification {
	return Classification{
		CallID:        c.ID,
		DisplayStatus: DisplayStatusOf(c.DialStatus, c.TalkTime),
		GradingStatus: GradingStatusOf(c.HasTranscript(), c.Grades),
	}
}

func IsDisplayStatus(value string) bool {
	for _, status := range AllDisplayStatuses {
		if string(status) == value {
			return true
		}
	}

	return false
}

func IsGradingStatus(value string) bool {
	for _, status := range AllGradingStatuses {
		if string(status) == value {
			return true
		}
	}

	return false
}

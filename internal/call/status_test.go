package call

import (
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"github.com/stretchr/testify/require"
)

func TestDisplayStatusOfAnsweredBuckets(t *testing.T) {
	for talkTime := 0; talkTime <= 10; talkTime++ {
		expected := DisplayNoConversation
		if talkTime == 0 {
			expected = DisplayAbandoned
		}

		require.Equal(t, expected, DisplayStatusOf(DialAnswered, talkTime), "talk_time=%d", talkTime)
	}

	for talkTime := 11; talkTime <= 60; talkTime++ {
		require.Equal(t, DisplayShortCall, DisplayStatusOf(DialAnswered, talkTime), "talk_time=%d", talkTime)
	}

	for _, talkTime := range []int{61, 62, 300, 7200} {
		require.Equal(t, DisplayConversation, DisplayStatusOf(DialAnswered, talkTime), "talk_time=%d", talkTime)
	}
}

func TestDisplayStatusOfDialStatuses(t *testing.T) {
	tests := []struct {
		name       string
		dialStatus string
		talkTime   int
		expected   DisplayStatus
	}{
		{"voicemail ignores talk time", DialVoicemail, 400, DisplayVoicemail},
		{"voicemail with zero talk time", DialVoicemail, 0, DisplayVoicemail},
		{"no answer is missed", DialNoAnswer, 0, DisplayMissed},
		{"missed is missed", DialMissed, 30, DisplayMissed},
		{"abandoned with talk time", DialAbandoned, 90, DisplayAbandoned},
		{"busy", DialBusy, 0, DisplayBusy},
		{"completed is answered-like", DialCompleted, 45, DisplayShortCall},
		{"received is answered-like", DialReceived, 5, DisplayNoConversation},
		{"other is answered-like", DialOther, 0, DisplayAbandoned},
		{"unknown value is answered-like", "transferred", 120, DisplayConversation},
		{"empty value is answered-like", "", 61, DisplayConversation},
		{"case and spaces are ignored", "  VoiceMail ", 10, DisplayVoicemail},
		{"negative talk time counts as zero", DialAnswered, -3, DisplayAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, DisplayStatusOf(tt.dialStatus, tt.talkTime))
		})
	}
}

func TestGradingStatusOf(t *testing.T) {
	draft := grade.Grade{Status: grade.StatusDraft}
	submitted := grade.Grade{Status: grade.StatusSubmitted}

	tests := []struct {
		name          string
		hasTranscript bool
		grades        []grade.Grade
		expected      GradingStatus
	}{
		{"no transcript and no grades", false, nil, GradingNeedsProcessing},
		{"no transcript wins over submitted grade", false, []grade.Grade{submitted}, GradingNeedsProcessing},
		{"transcript and no grades", true, nil, GradingReady},
		{"only drafts", true, []grade.Grade{draft, draft}, GradingInProgress},
		{"submitted wins over drafts", true, []grade.Grade{draft, submitted, draft}, GradingGraded},
		{"unknown grade status is ignored", true, []grade.Grade{{Status: "archived"}}, GradingReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, GradingStatusOf(tt.hasTranscript, tt.grades))
		})
	}
}

func TestClassifyTreatsEmptyTranscriptAsMissing(t *testing.T) {
	empty := ""
	text := "agent: hello"

	withoutTranscript := &Call{ID: 1, DialStatus: DialAnswered, TalkTime: 90, Transcript: &empty}
	require.Equal(t, Classification{
		CallID:        1,
		DisplayStatus: DisplayConversation,
		GradingStatus: GradingNeedsProcessing,
	}, Classify(withoutTranscript))

	withTranscript := &Call{
		ID:         2,
		DialStatus: DialBusy,
		Transcript: &text,
		Grades:     []grade.Grade{{Status: grade.StatusDraft}},
	}
	require.Equal(t, Classification{
		CallID:        2,
		DisplayStatus: DisplayBusy,
		GradingStatus: GradingInProgress,
	}, Classify(withTranscript))
}

func TestStatusNameValidation(t *testing.T) {
	require.True(t, IsDisplayStatus("short_call"))
	require.False(t, IsDisplayStatus("answered"))
	require.True(t, IsGradingStatus("in_progress"))
	require.False(t, IsGradingStatus("draft"))
}

func TestDisplayStatusOfFoldsASCIIOnly(t *testing.T) {
	require.Equal(t, DisplayMissed, DisplayStatusOf(" MISSED ", 120))
	require.Equal(t, DisplayConversation, DisplayStatusOf("MİSSED", 120))
	require.Equal(t, DisplayShortCall, DisplayStatusOf("MİSSED", 30))
}

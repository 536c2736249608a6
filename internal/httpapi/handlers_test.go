package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/settings"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/testdb"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiFixture struct {
	db     *gorm.DB
	router *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := testdb.New(t,
		&call.Call{},
		&grade.Grade{},
		&grade.GradeCategoryScore{},
		&grade.RubricCategory{},
		&interaction.CallInteraction{},
		&settings.Setting{},
	)

	return &apiFixture{db: db, router: NewRouter(NewHandlers(db, nil))}
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	request := httptest.NewRequestWithContext(context.Background(), method, target, &payload)
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)

	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()

	var decoded T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))

	return decoded
}

func (f *apiFixture) seedCall(t *testing.T, externalID, dialStatus string, talkTime int) call.Call {
	t.Helper()

	transcript := "agent: hello"
	record := call.Call{ExternalID: externalID, AccountID: 1, DialStatus: dialStatus, TalkTime: talkTime, Transcript: &transcript}
	require.NoError(t, f.db.Create(&record).Error)

	return record
}

func TestHealthz(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, recorder.Header().Get(headerRequestID))
}

func TestListCallsByDisplayStatus(t *testing.T) {
	fixture := newAPIFixture(t)

	fixture.seedCall(t, "a", call.DialAnswered, 120)
	fixture.seedCall(t, "b", call.DialAnswered, 5)
	fixture.seedCall(t, "c", " MISSED ", 0)

	recorder := fixture.do(t, http.MethodGet, "/v1/calls?display_status=conversation&display_status=missed", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[struct {
		Calls []struct {
			ExternalID    string `json:"external_id"`
			DisplayStatus string `json:"display_status"`
		} `json:"calls"`
		Total int64 `json:"total"`
	}](t, recorder)

	require.Equal(t, int64(2), response.Total)
	require.Equal(t, "a", response.Calls[0].ExternalID)
	require.Equal(t, string(call.DisplayConversation), response.Calls[0].DisplayStatus)
	require.Equal(t, string(call.DisplayMissed), response.Calls[1].DisplayStatus)
}

func TestListCallsRejectsUnknownStatus(t *testing.T) {
	fixture := newAPIFixture(t)

	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/calls?display_status=ringing", nil).Code)
	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/calls?grading_status=done", nil).Code)
	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/calls?limit=9000", nil).Code)
}

func TestGetCallStatus(t *testing.T) {
	fixture := newAPIFixture(t)
	seeded := fixture.seedCall(t, "a", "voicemail", 40)

	recorder := fixture.do(t, http.MethodGet, "/v1/calls/1/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	classification := decode[call.Classification](t, recorder)
	require.Equal(t, seeded.ID, classification.CallID)
	require.Equal(t, call.DisplayVoicemail, classification.DisplayStatus)

	require.Equal(t, http.StatusNotFound, fixture.do(t, http.MethodGet, "/v1/calls/99/status", nil).Code)
	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/calls/abc/status", nil).Code)
}

func TestRecordAndListInteractions(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/v1/interactions", map[string]any{
		"call_id":      3,
		"user_id":      8,
		"action":       interaction.ActionOpened,
		"page_seconds": 30,
		"metadata":     map[string]any{"tab": "queue"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = fixture.do(t, http.MethodPost, "/v1/interactions", map[string]any{
		"call_id": 3,
		"user_id": 8,
		"action":  "paused",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = fixture.do(t, http.MethodPost, "/v1/interactions", map[string]any{
		"call_id": 3,
		"action":  interaction.ActionGraded,
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/v1/calls/3/interactions", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[struct {
		Interactions []interaction.CallInteraction `json:"interactions"`
	}](t, recorder)
	require.Len(t, response.Interactions, 1)
	require.Equal(t, interaction.ActionOpened, response.Interactions[0].Action)
	require.Equal(t, 30, *response.Interactions[0].PageSeconds)
}

func TestPreviewScore(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/v1/scoring/preview", map[string]any{
		"scores": map[string]int{"1": 4, "2": 2, "3": 1},
		"categories": []map[string]any{
			{"id": 1, "weight": 0.5, "active": true},
			{"id": 2, "weight": 0.5, "active": true},
			{"id": 3, "weight": 1, "active": false},
		},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[struct {
		Result struct {
			Average    float64 `json:"average"`
			Percentage float64 `json:"percentage"`
			Band       string  `json:"band"`
		} `json:"result"`
		Categories []categoryLabel `json:"categories"`
	}](t, recorder)

	require.InDelta(t, 3.0, response.Result.Average, 1e-9)
	require.InDelta(t, 75.0, response.Result.Percentage, 1e-9)
	require.Equal(t, "fair", response.Result.Band)
	require.Len(t, response.Categories, 3)
	require.Equal(t, "Excellent", response.Categories[0].Label)

	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodPost, "/v1/scoring/preview", map[string]any{}).Code)
}

func TestPreviewUnknownGrade(t *testing.T) {
	fixture := newAPIFixture(t)

	require.Equal(t, http.StatusNotFound, fixture.do(t, http.MethodGet, "/v1/grades/5/preview", nil).Code)
	require.Equal(t, http.StatusNotFound, fixture.do(t, http.MethodGet, "/v1/grades/5/reconcile", nil).Code)
}

func TestQualityEndpoints(t *testing.T) {
	fixture := newAPIFixture(t)

	seeded := fixture.seedCall(t, "a", call.DialAnswered, 300)
	completedAt := time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC)
	percentage := 80.0
	require.NoError(t, fixture.db.Create(&grade.Grade{
		CallID:             seeded.ID,
		UserID:             4,
		Status:             grade.StatusSubmitted,
		Percentage:         &percentage,
		PlaybackSeconds:    30,
		GradingCompletedAt: &completedAt,
	}).Error)

	recorder := fixture.do(t, http.MethodGet, "/v1/quality/reviewers?from=2025-05-01&to=2025-06-01", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decode[struct {
		Reviewers []struct {
			ReviewerID uint `json:"reviewer_id"`
			Flagged    int  `json:"flagged"`
		} `json:"reviewers"`
	}](t, recorder)
	require.Len(t, response.Reviewers, 1)
	require.Equal(t, uint(4), response.Reviewers[0].ReviewerID)
	require.Equal(t, 1, response.Reviewers[0].Flagged)

	recorder = fixture.do(t, http.MethodGet, "/v1/quality/grades?from=2025-05-01&to=2025-06-01", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/v1/quality/export?from=2025-05-01&to=2025-06-01", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, xlsxContentType, recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Header().Get("Content-Disposition"), "quality-audit_20250501_20250601_")
	require.NotZero(t, recorder.Body.Len())

	recorder = fixture.do(t, http.MethodGet, "/v1/quality/thresholds", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestQualityRangeValidation(t *testing.T) {
	fixture := newAPIFixture(t)

	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/quality/reviewers", nil).Code)
	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/quality/grades?from=2025-06-01&to=2025-05-01", nil).Code)
	require.Equal(t, http.StatusBadRequest, fixture.do(t, http.MethodGet, "/v1/quality/export?from=yesterday&to=2025-05-01", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable,
		fixture.do(t, http.MethodPost, "/v1/quality/export/upload?from=2025-05-01&to=2025-06-01", nil).Code)
}

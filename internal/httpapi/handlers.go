package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/quality"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/scoring"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers stay thin: bind input, call a service, render JSON.
type Handlers struct {
	Calls        *call.CallRepository
	Interactions *interaction.InteractionService
	Grades       *grade.GradeService
	Quality      *quality.QualityMonitor
	// Uploader is nil when object storage is disabled.
	Uploader quality.Uploader
}

func NewHandlers(dbConn *gorm.DB, uploader quality.Uploader) *Handlers {
	return &Handlers{
		Calls:        call.NewCallRepository(dbConn),
		Interactions: interaction.NewService(dbConn),
		Grades:       grade.NewService(dbConn),
		Quality:      quality.NewMonitor(dbConn),
		Uploader:     uploader,
	}
}

type idParam struct {
	ID uint `uri:"id" binding:"required,gt=0"`
}

type listCallsQuery struct {
	DisplayStatuses []string `form:"display_status"`
	GradingStatuses []string `form:"grading_status"`
	AccountID       uint     `form:"account_id"`
	Limit           int      `form:"limit"          binding:"omitempty,min=1,max=500"`
	Offset          int      `form:"offset"         binding:"omitempty,min=0"`
}

type callView struct {
	call.Call
	DisplayStatus call.DisplayStatus `json:"display_status"`
	GradingStatus call.GradingStatus `json:"grading_status"`
}

type recordInteractionRequest struct {
	CallID      uint           `json:"call_id"`
	UserID      uint           `json:"user_id"`
	Action      string         `json:"action"`
	PageSeconds *int           `json:"page_seconds"`
	Metadata    map[string]any `json:"metadata"`
	OccurredAt  *time.Time     `json:"occurred_at"`
}

type scorePreviewRequest struct {
	Scores     map[uint]int       `json:"scores"     binding:"required"`
	Categories []scoring.Category `json:"categories" binding:"required"`
}

type categoryLabel struct {
	ID    uint   `json:"id"`
	Score int    `json:"score"`
	Label string `json:"label"`
}

type dateRangeQuery struct {
	From time.Time `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To   time.Time `form:"to"   time_format:"2006-01-02" time_utc:"1"`
}

func (q dateRangeQuery) dateRange() quality.DateRange {
	return quality.DateRange{From: q.From, To: q.To}
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *Handlers) ListCalls(c *gin.Context) {
	var query listCallsQuery

	err := c.ShouldBindQuery(&query)
	if err != nil {
		badRequest(c, "invalid query: "+err.Error())
		return
	}

	filter := call.ListFilter{AccountID: query.AccountID, Limit: query.Limit, Offset: query.Offset}

	for _, value := range query.DisplayStatuses {
		if !call.IsDisplayStatus(value) {
			badRequest(c, fmt.Sprintf("unknown display_status %q", value))
			return
		}

		filter.DisplayStatuses = append(filter.DisplayStatuses, call.DisplayStatus(value))
	}

	for _, value := range query.GradingStatuses {
		if !call.IsGradingStatus(value) {
			badRequest(c, fmt.Sprintf("unknown grading_status %q", value))
			return
		}

		filter.GradingStatuses = append(filter.GradingStatuses, call.GradingStatus(value))
	}

	result, err := h.Calls.ListCalls(c.Request.Context(), filter)
	if err != nil {
		internalError(c, err)
		return
	}

	views := make([]callView, 0, len(result.Calls))
	for idx := range result.Calls {
		classification := call.Classify(&result.Calls[idx])
		views = append(views, callView{
			Call:          result.Calls[idx],
			DisplayStatus: classification.DisplayStatus,
			GradingStatus: classification.GradingStatus,
		})
	}

	c.JSON(http.StatusOK, gin.H{"calls": views, "total": result.Total})
}

func (h *Handlers) GetCallStatus(c *gin.Context) {
	var param idParam

	err := c.ShouldBindUri(&param)
	if err != nil {
		badRequest(c, "invalid call id")
		return
	}

	found, err := h.Calls.GetCallByID(c.Request.Context(), param.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}

		internalError(c, err)

		return
	}

	c.JSON(http.StatusOK, call.Classify(found))
}

func (h *Handlers) ListInteractions(c *gin.Context) {
	var param idParam

	err := c.ShouldBindUri(&param)
	if err != nil {
		badRequest(c, "invalid call id")
		return
	}

	history, err := h.Interactions.History(c.Request.Context(), param.ID)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"interactions": history})
}

func (h *Handlers) RecordInteraction(c *gin.Context) {
	var request recordInteractionRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		badRequest(c, "invalid json")
		return
	}

	var occurredAt time.Time
	if request.OccurredAt != nil {
		occurredAt = *request.OccurredAt
	}

	recorded, err := h.Interactions.RecordAt(
		c.Request.Context(),
		occurredAt,
		request.CallID,
		request.UserID,
		request.Action,
		request.PageSeconds,
		request.Metadata,
	)
	if err != nil {
		if errors.Is(err, interaction.ErrInvalidAction) || errors.Is(err, interaction.ErrMissingParticipant) {
			badRequest(c, err.Error())
			return
		}

		internalError(c, err)

		return
	}

	c.JSON(http.StatusCreated, recorded)
}

// PreviewScore scores ad hoc input without touching stored grades.
func (h *Handlers) PreviewScore(c *gin.Context) {
	var request scorePreviewRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		badRequest(c, "scores and categories are required")
		return
	}

	labels := make([]categoryLabel, 0, len(request.Categories))
	for _, category := range request.Categories {
		score, ok := request.Scores[category.ID]
		if !ok {
			continue
		}

		labels = append(labels, categoryLabel{ID: category.ID, Score: score, Label: scoring.CategoryLabel(score)})
	}

	c.JSON(http.StatusOK, gin.H{
		"result":     scoring.Score(request.Scores, request.Categories),
		"categories": labels,
	})
}

func (h *Handlers) PreviewGrade(c *gin.Context) {
	var param idParam

	err := c.ShouldBindUri(&param)
	if err != nil {
		badRequest(c, "invalid grade id")
		return
	}

	feedback, err := h.Grades.Preview(c.Request.Context(), param.ID)
	if err != nil {
		gradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}

func (h *Handlers) ReconcileGrade(c *gin.Context) {
	var param idParam

	err := c.ShouldBindUri(&param)
	if err != nil {
		badRequest(c, "invalid grade id")
		return
	}

	reconciliation, err := h.Grades.Reconcile(c.Request.Context(), param.ID)
	if err != nil {
		gradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, reconciliation)
}

func gradeError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "grade not found"})
		return
	}

	internalError(c, err)
}

func (h *Handlers) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.Quality.Thresholds(c.Request.Context()))
}

func (h *Handlers) bindDateRange(c *gin.Context) (quality.DateRange, bool) {
	var query dateRangeQuery

	err := c.ShouldBindQuery(&query)
	if err != nil {
		badRequest(c, "from and to must be dates formatted as YYYY-MM-DD")
		return quality.DateRange{}, false
	}

	dateRange := query.dateRange()

	err = dateRange.Validate()
	if err != nil {
		badRequest(c, err.Error())
		return quality.DateRange{}, false
	}

	return dateRange, true
}

func (h *Handlers) ListReviewerSummaries(c *gin.Context) {
	dateRange, ok := h.bindDateRange(c)
	if !ok {
		return
	}

	summaries, thresholds, err := h.Quality.ReviewerSummaries(c.Request.Context(), dateRange)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviewers": summaries, "thresholds": thresholds})
}

func (h *Handlers) ListReviews(c *gin.Context) {
	dateRange, ok := h.bindDateRange(c)
	if !ok {
		return
	}

	reviews, thresholds, err := h.Quality.Reviews(c.Request.Context(), dateRange)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"grades": reviews, "thresholds": thresholds})
}

func (h *Handlers) ExportAudit(c *gin.Context) {
	dateRange, ok := h.bindDateRange(c)
	if !ok {
		return
	}

	buffer, err := h.Quality.ExportAudit(c.Request.Context(), dateRange)
	if err != nil {
		internalError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", quality.AuditObjectKey(dateRange)))
	c.Data(http.StatusOK, xlsxContentType, buffer.Bytes())
}

func (h *Handlers) UploadAudit(c *gin.Context) {
	if h.Uploader == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "object storage is disabled"})
		return
	}

	dateRange, ok := h.bindDateRange(c)
	if !ok {
		return
	}

	url, err := h.Quality.UploadAudit(c.Request.Context(), dateRange, h.Uploader)
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-Id"

// NewRouter registers every route on a fresh engine.
func NewRouter(handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), requestMetrics())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		calls := v1.Group("/calls")
		calls.GET("", handlers.ListCalls)
		calls.GET("/:id/status", handlers.GetCallStatus)
		calls.GET("/:id/interactions", handlers.ListInteractions)

		v1.POST("/interactions", handlers.RecordInteraction)

		v1.POST("/scoring/preview", handlers.PreviewScore)

		grades := v1.Group("/grades")
		grades.GET("/:id/preview", handlers.PreviewGrade)
		grades.GET("/:id/reconcile", handlers.ReconcileGrade)

		quality := v1.Group("/quality")
		quality.GET("/thresholds", handlers.GetThresholds)
		quality.GET("/reviewers", handlers.ListReviewerSummaries)
		quality.GET("/grades", handlers.ListReviews)
		quality.GET("/export", handlers.ExportAudit)
		quality.POST("/export/upload", handlers.UploadAudit)
	}

	return router
}

// NewServer serves router on HTTP_PORT.
func NewServer(router http.Handler) *http.Server {
	timeout := time.Duration(config.Conf.HTTPTimeout) * time.Second

	return &http.Server{
		Addr:              ":" + config.Conf.HTTPPort,
		Handler:           router,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Writer.Header().Set(headerRequestID, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", routeOf(c)),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}

		if len(c.Errors) > 0 {
			logging.Logger.Error("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}

		logging.Logger.Debug("request", fields...)
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		prometheusCallgrade.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// routeOf keeps metric labels bounded: unmatched paths share one label.
func routeOf(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unmatched"
	}

	return route
}

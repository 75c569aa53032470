package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
)

type dailyAggregationRequest struct {
	Date string `json:"date"`
}

type backfillRequest struct {
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

type flagEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func invalidDate(field, value string, err error) *apperrors.AppError {
	return apperrors.ErrInvalidRequest(err).
		WithParams(map[string]any{field: value}).
		WithFieldErrors([]apperrors.FieldError{{Field: field, Code: "date", Message: "expected YYYY-MM-DD"}})
}

// PostAggregationDaily handles POST /admin/aggregation/daily. Without a date
// the job aggregates yesterday as of its run time.
func (s *Server) PostAggregationDaily(c *gin.Context) {
	var req dailyAggregationRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	var date *time.Time
	if req.Date != "" {
		d, err := s.aggregates.ParseDate(req.Date)
		if err != nil {
			_ = c.Error(invalidDate("date", req.Date, err))
			return
		}
		date = &d
	}

	job, err := s.scheduler.TriggerDaily(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// PostAggregationBackfill handles POST /admin/aggregation/backfill.
func (s *Server) PostAggregationBackfill(c *gin.Context) {
	var req backfillRequest
	if !bindJSON(c, &req) {
		return
	}
	start, err := s.aggregates.ParseDate(req.StartDate)
	if err != nil {
		_ = c.Error(invalidDate("startDate", req.StartDate, err))
		return
	}
	end, err := s.aggregates.ParseDate(req.EndDate)
	if err != nil {
		_ = c.Error(invalidDate("endDate", req.EndDate, err))
		return
	}

	job, err := s.scheduler.TriggerBackfill(c.Request.Context(), start, end)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetAggregationStatus handles GET /admin/aggregation/status.
func (s *Server) GetAggregationStatus(c *gin.Context) {
	status, err := s.scheduler.Status(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetAggregates handles GET /admin/aggregation/aggregates?date=YYYY-MM-DD.
func (s *Server) GetAggregates(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		_ = c.Error(requiredField("date"))
		return
	}
	date, err := s.aggregates.ParseDate(raw)
	if err != nil {
		_ = c.Error(invalidDate("date", raw, err))
		return
	}
	rows, err := s.aggregates.Aggregates(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": raw, "aggregates": rows})
}

// PostFlagEnabled handles POST /admin/flags/:id/enabled. The cached flag is
// invalidated after the change commits.
func (s *Server) PostFlagEnabled(c *gin.Context) {
	var req flagEnabledRequest
	if !bindJSON(c, &req) {
		return
	}
	flag, err := s.flags.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

// PostCacheWarmup handles POST /admin/cache/warmup.
func (s *Server) PostCacheWarmup(c *gin.Context) {
	n, err := s.flags.WarmUp(c.Request.Context())
	if err != nil {
		logger.Error("cache warm-up failed", zap.Error(err))
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInternal, "cache warm-up failed", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": n})
}

// DeleteCachedFlag handles DELETE /admin/cache/flags/:id.
func (s *Server) DeleteCachedFlag(c *gin.Context) {
	id := c.Param("id")
	key, err := s.flags.Purge(c.Request.Context(), id)
	if err != nil {
		if _, ok := apperrors.IsAppError(err); !ok {
			logger.Error("cache purge failed", zap.String("flag_id", id), zap.Error(err))
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "key": key, "purged": true})
}

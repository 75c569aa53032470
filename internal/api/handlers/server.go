// Package handlers implements the HTTP API under /api/v1.
//
// Handlers report failures with c.Error and leave rendering to
// middleware.ErrorHandler.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"rollout.io/rollout/internal/aggregation"
	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/scheduler"
	"rollout.io/rollout/internal/service"
)

// Decider answers decision requests.
type Decider interface {
	Decide(ctx context.Context, req domain.DecisionRequest) map[string]domain.Decision
	DecideAll(ctx context.Context, clientID string, attrs map[string]any, environment string) (map[string]domain.Decision, error)
}

// EventRecorder stores exposures and conversions.
type EventRecorder interface {
	RecordExposure(ctx context.Context, in service.ExposureInput) (*domain.Exposure, error)
	RecordConversion(ctx context.Context, in service.ConversionInput) (*domain.Conversion, error)
	RecordExposures(ctx context.Context, items []service.ExposureInput) (*service.BatchResult, error)
	RecordConversions(ctx context.Context, items []service.ConversionInput) (*service.BatchResult, error)
}

// FlagAdmin toggles flags and manages the flag cache.
type FlagAdmin interface {
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.FeatureFlag, error)
	Purge(ctx context.Context, id string) (string, error)
	WarmUp(ctx context.Context) (int, error)
}

// AggregationScheduler queues aggregation jobs.
type AggregationScheduler interface {
	TriggerDaily(ctx context.Context, date *time.Time) (*scheduler.Enqueued, error)
	TriggerBackfill(ctx context.Context, start, end time.Time) (*scheduler.Enqueued, error)
	Status(ctx context.Context) (*scheduler.Status, error)
}

// AggregateReader reads stored aggregates and parses dates in the
// aggregation time zone.
type AggregateReader interface {
	ParseDate(s string) (time.Time, error)
	Aggregates(ctx context.Context, date time.Time) ([]domain.Aggregate, error)
}

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ AggregateReader = (*aggregation.Pipeline)(nil)

// Server holds the handler dependencies.
type Server struct {
	decider    Decider
	recorder   EventRecorder
	flags      FlagAdmin
	scheduler  AggregationScheduler
	aggregates AggregateReader
	database   Pinger
	cache      Pinger
}

// ServerDeps holds all dependencies for creating a Server. Wiring is manual.
type ServerDeps struct {
	Decider    Decider
	Recorder   EventRecorder
	Flags      FlagAdmin
	Scheduler  AggregationScheduler
	Aggregates AggregateReader
	Database   Pinger
	Cache      Pinger
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		decider:    deps.Decider,
		recorder:   deps.Recorder,
		flags:      deps.Flags,
		scheduler:  deps.Scheduler,
		aggregates: deps.Aggregates,
		database:   deps.Database,
		cache:      deps.Cache,
	}
}

// RegisterRoutes mounts the API on api, which is expected to be /api/v1.
func (s *Server) RegisterRoutes(api *gin.RouterGroup) {
	client := api.Group("/client")
	client.POST("/decide", s.PostDecide)
	client.GET("/decide", s.GetDecide)

	events := api.Group("/events")
	events.POST("/exposures", s.PostExposure)
	events.POST("/exposures/batch", s.PostExposureBatch)
	events.POST("/conversions", s.PostConversion)
	events.POST("/conversions/batch", s.PostConversionBatch)

	admin := api.Group("/admin")
	admin.POST("/aggregation/daily", s.PostAggregationDaily)
	admin.POST("/aggregation/backfill", s.PostAggregationBackfill)
	admin.GET("/aggregation/status", s.GetAggregationStatus)
	admin.GET("/aggregation/aggregates", s.GetAggregates)
	admin.POST("/flags/:id/enabled", s.PostFlagEnabled)
	admin.POST("/cache/warmup", s.PostCacheWarmup)
	admin.DELETE("/cache/flags/:id", s.DeleteCachedFlag)

	health := api.Group("/health")
	health.GET("/live", s.GetLiveness)
	health.GET("/ready", s.GetReadiness)
}

// bindJSON decodes the body into req. On failure it records an
// INVALID_REQUEST error and returns false.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(apperrors.ErrInvalidRequest(err).WithFieldErrors(fieldErrors(err)))
		return false
	}
	return true
}

func fieldErrors(err error) []apperrors.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperrors.FieldError{
			Field: fe.Field(),
			Code:  fe.Tag(),
		})
	}
	return out
}

func requiredField(field string) *apperrors.AppError {
	return apperrors.ErrInvalidRequest(errors.New(field+" is required")).
		WithFieldErrors([]apperrors.FieldError{{Field: field, Code: "required"}})
}

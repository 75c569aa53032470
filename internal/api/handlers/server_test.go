package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/api/middleware"
	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/scheduler"
	"rollout.io/rollout/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type fakeDecider struct {
	lastReq   domain.DecisionRequest
	lastAttrs map[string]any
	lastEnv   string
	allErr    error
}

func (f *fakeDecider) Decide(_ context.Context, req domain.DecisionRequest) map[string]domain.Decision {
	f.lastReq = req
	out := make(map[string]domain.Decision, len(req.FlagKeys))
	for _, k := range req.FlagKeys {
		out[k] = domain.Decision{Enabled: true, Reason: domain.ReasonBooleanFlag}
	}
	return out
}

func (f *fakeDecider) DecideAll(_ context.Context, clientID string, attrs map[string]any, env string) (map[string]domain.Decision, error) {
	f.lastReq = domain.DecisionRequest{ClientID: clientID}
	f.lastAttrs = attrs
	f.lastEnv = env
	if f.allErr != nil {
		return nil, f.allErr
	}
	return map[string]domain.Decision{"checkout": {Enabled: true, Variant: "b", Reason: domain.ReasonVariantSelected}}, nil
}

type fakeRecorder struct {
	exposures   []service.ExposureInput
	conversions []service.ConversionInput
	err         error
}

func (f *fakeRecorder) RecordExposure(_ context.Context, in service.ExposureInput) (*domain.Exposure, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.exposures = append(f.exposures, in)
	return &domain.Exposure{ID: "exp-1"}, nil
}

func (f *fakeRecorder) RecordConversion(_ context.Context, in service.ConversionInput) (*domain.Conversion, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.conversions = append(f.conversions, in)
	return &domain.Conversion{ID: "conv-1"}, nil
}

func (f *fakeRecorder) RecordExposures(_ context.Context, items []service.ExposureInput) (*service.BatchResult, error) {
	if len(items) > 2 {
		return nil, apperrors.ErrBatchTooLarge(2)
	}
	return &service.BatchResult{Processed: len(items), Successful: len(items)}, nil
}

func (f *fakeRecorder) RecordConversions(_ context.Context, items []service.ConversionInput) (*service.BatchResult, error) {
	return &service.BatchResult{
		Processed: len(items),
		Failed:    len(items),
		Errors:    []service.BatchError{{Index: 0, Code: apperrors.CodeExperimentNotFound}},
	}, nil
}

type fakeFlags struct {
	enabled map[string]bool
	purged  []string
	warmErr error
}

func (f *fakeFlags) SetEnabled(_ context.Context, id string, enabled bool) (domain.FeatureFlag, error) {
	if id != "flag-1" {
		return domain.FeatureFlag{}, apperrors.ErrFlagNotFound(id)
	}
	f.enabled[id] = enabled
	return domain.FeatureFlag{ID: id, Key: "checkout", Enabled: enabled}, nil
}

func (f *fakeFlags) Purge(_ context.Context, id string) (string, error) {
	if id != "flag-1" {
		return "", apperrors.ErrFlagNotFound(id)
	}
	f.purged = append(f.purged, id)
	return "checkout", nil
}

func (f *fakeFlags) WarmUp(context.Context) (int, error) {
	if f.warmErr != nil {
		return 0, f.warmErr
	}
	return 3, nil
}

type fakeScheduler struct {
	daily      []*time.Time
	start, end time.Time
	err        error
}

func (f *fakeScheduler) TriggerDaily(_ context.Context, date *time.Time) (*scheduler.Enqueued, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.daily = append(f.daily, date)
	return &scheduler.Enqueued{JobID: 7, Type: "daily"}, nil
}

func (f *fakeScheduler) TriggerBackfill(_ context.Context, start, end time.Time) (*scheduler.Enqueued, error) {
	if start.After(end) {
		return nil, apperrors.ErrInvalidDateRange(start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	f.start, f.end = start, end
	return &scheduler.Enqueued{JobID: 8, Type: "backfill"}, nil
}

func (f *fakeScheduler) Status(context.Context) (*scheduler.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &scheduler.Status{Counts: map[string]int64{"completed": 2}}, nil
}

type fakeAggregates struct{}

func (fakeAggregates) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}

func (fakeAggregates) Aggregates(_ context.Context, date time.Time) ([]domain.Aggregate, error) {
	return []domain.Aggregate{{Date: date, FlagID: "flag-1", VariantKey: "a", Impressions: 4, Conversions: 1}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type harness struct {
	router    *gin.Engine
	decider   *fakeDecider
	recorder  *fakeRecorder
	flags     *fakeFlags
	scheduler *fakeScheduler
}

func newHarness(t *testing.T, cacheErr error) *harness {
	t.Helper()
	h := &harness{
		decider:   &fakeDecider{},
		recorder:  &fakeRecorder{},
		flags:     &fakeFlags{enabled: map[string]bool{}},
		scheduler: &fakeScheduler{},
	}
	srv := NewServer(ServerDeps{
		Decider:    h.decider,
		Recorder:   h.recorder,
		Flags:      h.flags,
		Scheduler:  h.scheduler,
		Aggregates: fakeAggregates{},
		Database:   fakePinger{},
		Cache:      fakePinger{err: cacheErr},
	})
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	srv.RegisterRoutes(r.Group("/api/v1"))
	h.router = r
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperrors.AppError
	decodeBody(t, w, &body)
	return body.Code
}

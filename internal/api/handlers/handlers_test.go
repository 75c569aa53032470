package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/service"
)

func TestPostDecide(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/client/decide",
		`{"clientId":"user-1","flagKeys":["checkout","search"],"context":{"country":"US"},"environment":"production","recordExposures":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]domain.Decision
	decodeBody(t, w, &got)
	assert.Len(t, got, 2)
	assert.Equal(t, domain.ReasonBooleanFlag, got["checkout"].Reason)
	assert.Equal(t, "user-1", h.decider.lastReq.ClientID)
	assert.Equal(t, "production", h.decider.lastReq.Environment)
	assert.True(t, h.decider.lastReq.RecordExposures)
	assert.Equal(t, "US", h.decider.lastReq.Context["country"])
}

func TestPostDecide_Validation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing client", `{"flagKeys":["checkout"]}`},
		{"no flag keys", `{"clientId":"user-1","flagKeys":[]}`},
		{"malformed", `{"clientId":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/v1/client/decide", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperrors.CodeInvalidRequest, errorCode(t, w))
		})
	}
}

func TestGetDecide(t *testing.T) {
	h := newHarness(t, nil)

	q := url.Values{}
	q.Set("clientId", "user-1")
	q.Set("environment", "staging")
	q.Set("context", `{"plan":"pro"}`)
	w := h.do(http.MethodGet, "/api/v1/client/decide?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]domain.Decision
	decodeBody(t, w, &got)
	assert.Equal(t, "b", got["checkout"].Variant)
	assert.Equal(t, "staging", h.decider.lastEnv)
	assert.Equal(t, map[string]any{"plan": "pro"}, h.decider.lastAttrs)
}

func TestGetDecide_InvalidContextIsEmpty(t *testing.T) {
	h := newHarness(t, nil)

	for _, raw := range []string{`{not json`, `null`, `[1,2]`} {
		q := url.Values{}
		q.Set("clientId", "user-1")
		q.Set("context", raw)
		w := h.do(http.MethodGet, "/api/v1/client/decide?"+q.Encode(), "")
		require.Equal(t, http.StatusOK, w.Code, raw)
		assert.Empty(t, h.decider.lastAttrs, raw)
		assert.NotNil(t, h.decider.lastAttrs, raw)
	}
}

func TestGetDecide_Errors(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/api/v1/client/decide", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.decider.allErr = errors.New("store down")
	w = h.do(http.MethodGet, "/api/v1/client/decide?clientId=user-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeInternal, errorCode(t, w))
}

func TestPostExposure(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/events/exposures",
		`{"flagKey":"checkout","userId":"user-1","variantKey":"a","timestamp":"2026-01-02T03:04:05Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body recordedResponse
	decodeBody(t, w, &body)
	assert.Equal(t, "exp-1", body.ID)
	assert.True(t, body.Success)
	require.Len(t, h.recorder.exposures, 1)
	assert.Equal(t, "a", *h.recorder.exposures[0].VariantKey)
	assert.Equal(t, 2026, h.recorder.exposures[0].Timestamp.Year())

	w = h.do(http.MethodPost, "/api/v1/events/exposures", `{"userId":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.recorder.err = apperrors.ErrFlagNotFound("ghost")
	w = h.do(http.MethodPost, "/api/v1/events/exposures", `{"flagKey":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeFlagNotFound, errorCode(t, w))
}

func TestPostConversion(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/events/conversions",
		`{"experimentId":"exp-1","metricKey":"purchase","value":12.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.recorder.conversions, 1)
	assert.InDelta(t, 12.5, *h.recorder.conversions[0].Value, 1e-9)

	w = h.do(http.MethodPost, "/api/v1/events/conversions", `{"experimentId":"exp-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.recorder.err = apperrors.ErrExperimentNotFound("exp-2")
	w = h.do(http.MethodPost, "/api/v1/events/conversions", `{"experimentId":"exp-2","metricKey":"purchase"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventBatches(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/events/exposures/batch",
		`{"exposures":[{"flagKey":"a"},{"flagKey":"b"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Success bool `json:"success"`
		service.BatchResult
	}
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Successful)

	w = h.do(http.MethodPost, "/api/v1/events/exposures/batch",
		`{"exposures":[{"flagKey":"a"},{"flagKey":"b"},{"flagKey":"c"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, apperrors.CodeBatchTooLarge, errorCode(t, w))

	w = h.do(http.MethodPost, "/api/v1/events/conversions/batch",
		`{"conversions":[{"experimentId":"missing","metricKey":"m"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	res = struct {
		Success bool `json:"success"`
		service.BatchResult
	}{}
	decodeBody(t, w, &res)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.CodeExperimentNotFound, res.Errors[0].Code)

	w = h.do(http.MethodPost, "/api/v1/events/conversions/batch", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAggregationTriggers(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/admin/aggregation/daily", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, h.scheduler.daily, 1)
	assert.Nil(t, h.scheduler.daily[0])

	w = h.do(http.MethodPost, "/api/v1/admin/aggregation/daily", `{"date":"2026-03-01"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, h.scheduler.daily, 2)
	assert.Equal(t, "2026-03-01", h.scheduler.daily[1].Format("2006-01-02"))

	w = h.do(http.MethodPost, "/api/v1/admin/aggregation/daily", `{"date":"03/01/2026"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/admin/aggregation/backfill", `{"startDate":"2026-03-01","endDate":"2026-03-05"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 5, h.scheduler.end.Day())

	w = h.do(http.MethodPost, "/api/v1/admin/aggregation/backfill", `{"startDate":"2026-03-05","endDate":"2026-03-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidDateRange, errorCode(t, w))

	w = h.do(http.MethodPost, "/api/v1/admin/aggregation/backfill", `{"startDate":"2026-03-05"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAggregationStatusAndRows(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/api/v1/admin/aggregation/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Counts map[string]int64 `json:"counts"`
	}
	decodeBody(t, w, &status)
	assert.Equal(t, int64(2), status.Counts["completed"])

	w = h.do(http.MethodGet, "/api/v1/admin/aggregation/aggregates?date=2026-03-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows struct {
		Aggregates []domain.Aggregate `json:"aggregates"`
	}
	decodeBody(t, w, &rows)
	require.Len(t, rows.Aggregates, 1)
	assert.Equal(t, int64(4), rows.Aggregates[0].Impressions)

	w = h.do(http.MethodGet, "/api/v1/admin/aggregation/aggregates", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.scheduler.err = apperrors.ErrSchedulerUnavailable()
	w = h.do(http.MethodGet, "/api/v1/admin/aggregation/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apperrors.CodeSchedulerUnavailable, errorCode(t, w))
}

func TestFlagAdmin(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/admin/flags/flag-1/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	enabled, ok := h.flags.enabled["flag-1"]
	require.True(t, ok)
	assert.False(t, enabled)

	w = h.do(http.MethodPost, "/api/v1/admin/flags/flag-1/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/admin/flags/ghost/enabled", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/v1/admin/cache/warmup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"flags":3}`, w.Body.String())

	h.flags.warmErr = errors.New("db down")
	w = h.do(http.MethodPost, "/api/v1/admin/cache/warmup", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/admin/cache/flags/flag-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"flag-1"}, h.flags.purged)

	w = h.do(http.MethodDelete, "/api/v1/admin/cache/flags/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/v1/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok","cache":"ok"}}`, w.Body.String())

	h = newHarness(t, errors.New("redis down"))
	w = h.do(http.MethodGet, "/api/v1/health/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","cache":"error"}}`, w.Body.String())
}

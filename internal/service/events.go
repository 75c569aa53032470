package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
	"rollout.io/rollout/internal/pkg/worker"
)

// DefaultMaxBatchItems caps a single batch request.
const DefaultMaxBatchItems = 500

const (
	kindExposure   = "exposure"
	kindConversion = "conversion"
)

// EventStore persists exposures and conversions.
type EventStore interface {
	InsertExposure(ctx context.Context, e domain.Exposure) error
	InsertConversion(ctx context.Context, c domain.Conversion) error
	GetExperiment(ctx context.Context, id string) (domain.Experiment, error)
	GetExposure(ctx context.Context, id string) (domain.Exposure, error)
}

// ExposureInput is one exposure to record. Clients name the flag by key;
// the decision engine passes the already resolved id instead.
type ExposureInput struct {
	FlagKey    string         `json:"flagKey"`
	FlagID     string         `json:"-"`
	UserID     *string        `json:"userId,omitempty"`
	VariantKey *string        `json:"variantKey,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ConversionInput is one conversion to record. Value defaults to 1.
type ConversionInput struct {
	ExperimentID string    `json:"experimentId"`
	ExposureID   *string   `json:"exposureId,omitempty"`
	MetricKey    string    `json:"metricKey"`
	Value        *float64  `json:"value,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// BatchError describes one failed batch item.
type BatchError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Processed  int          `json:"processed"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []BatchError `json:"errors,omitempty"`
}

// Recorder validates and stores exposures and conversions.
type Recorder struct {
	resolver *FlagResolver
	store    EventStore
	pool     *worker.Pool
	maxBatch int
	now      func() time.Time
	log      *zap.Logger
}

// NewRecorder creates a Recorder. Batch items run on pool.
func NewRecorder(resolver *FlagResolver, store EventStore, pool *worker.Pool, maxBatch int) *Recorder {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchItems
	}
	return &Recorder{
		resolver: resolver,
		store:    store,
		pool:     pool,
		maxBatch: maxBatch,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Named("events"),
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RecordExposure stores one exposure. An unknown flag key yields a
// FLAG_NOT_FOUND AppError.
func (r *Recorder) RecordExposure(ctx context.Context, in ExposureInput) (*domain.Exposure, error) {
	exp, err := r.recordExposure(ctx, in)
	metrics.EventsRecorded.WithLabelValues(kindExposure, resultLabel(err)).Inc()
	return exp, err
}

func (r *Recorder) recordExposure(ctx context.Context, in ExposureInput) (*domain.Exposure, error) {
	flagID := in.FlagID
	if flagID == "" {
		if in.FlagKey == "" {
			return nil, apperrors.ErrInvalidRequest(errors.New("flagKey is required"))
		}
		snap, err := r.resolver.Resolve(ctx, in.FlagKey)
		if err != nil {
			return nil, err
		}
		flagID = snap.ID
	}

	exp := domain.Exposure{
		ID:         newEventID(),
		FlagID:     flagID,
		UserID:     in.UserID,
		VariantKey: in.VariantKey,
		Timestamp:  in.Timestamp,
		Metadata:   in.Metadata,
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = r.now()
	}
	if err := r.store.InsertExposure(ctx, exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// RecordConversion stores one conversion after checking that its experiment,
// and its exposure when given, exist.
func (r *Recorder) RecordConversion(ctx context.Context, in ConversionInput) (*domain.Conversion, error) {
	conv, err := r.recordConversion(ctx, in)
	metrics.EventsRecorded.WithLabelValues(kindConversion, resultLabel(err)).Inc()
	return conv, err
}

func (r *Recorder) recordConversion(ctx context.Context, in ConversionInput) (*domain.Conversion, error) {
	if in.ExperimentID == "" || in.MetricKey == "" {
		return nil, apperrors.ErrInvalidRequest(errors.New("experimentId and metricKey are required"))
	}
	if _, err := r.store.GetExperiment(ctx, in.ExperimentID); err != nil {
		return nil, err
	}
	if in.ExposureID != nil && *in.ExposureID != "" {
		if _, err := r.store.GetExposure(ctx, *in.ExposureID); err != nil {
			return nil, err
		}
	}

	conv := domain.Conversion{
		ID:           newEventID(),
		ExperimentID: in.ExperimentID,
		ExposureID:   in.ExposureID,
		MetricKey:    in.MetricKey,
		Value:        1,
		Timestamp:    in.Timestamp,
	}
	if in.Value != nil {
		conv.Value = *in.Value
	}
	if conv.Timestamp.IsZero() {
		conv.Timestamp = r.now()
	}
	if err := r.store.InsertConversion(ctx, conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// RecordExposures stores a batch of exposures. Items are independent: one
// failure does not stop the others.
func (r *Recorder) RecordExposures(ctx context.Context, items []ExposureInput) (*BatchResult, error) {
	return r.runBatch(ctx, len(items), func(ctx context.Context, i int) error {
		_, err := r.RecordExposure(ctx, items[i])
		return err
	})
}

// RecordConversions stores a batch of conversions.
func (r *Recorder) RecordConversions(ctx context.Context, items []ConversionInput) (*BatchResult, error) {
	return r.runBatch(ctx, len(items), func(ctx context.Context, i int) error {
		_, err := r.RecordConversion(ctx, items[i])
		return err
	})
}

func (r *Recorder) runBatch(ctx context.Context, n int, record func(ctx context.Context, i int) error) (*BatchResult, error) {
	if n > r.maxBatch {
		return nil, apperrors.ErrBatchTooLarge(r.maxBatch)
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		// The pool must not skip the task, or Done would never run; the
		// task checks the request context itself.
		err := r.pool.Submit(context.WithoutCancel(ctx), func(context.Context) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = record(ctx, i)
		})
		if err != nil {
			errs[i] = fmt.Errorf("submit item %d: %w", i, err)
			wg.Done()
		}
	}
	wg.Wait()

	res := &BatchResult{Processed: n}
	for i, err := range errs {
		if err == nil {
			res.Successful++
			continue
		}
		res.Failed++
		res.Errors = append(res.Errors, batchError(i, err))
	}
	if res.Failed > 0 {
		r.log.Info("batch completed with failures",
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func batchError(i int, err error) BatchError {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return BatchError{Index: i, Code: appErr.Code, Message: appErr.Message}
	}
	return BatchError{Index: i, Code: apperrors.CodeInternal, Message: err.Error()}
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Package aggregation rolls raw exposures and conversions into daily
// per-flag, per-variant aggregates.
//
// A run for a given date overwrites that date's rows, so reruns and
// overlapping backfills converge on the same result.
package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
	"rollout.io/rollout/internal/repository"
)

// DefaultRetention is how long raw events are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Store is the relational side of the pipeline. Counts cover
// start <= timestamp < end.
type Store interface {
	ExposureCounts(ctx context.Context, start, end time.Time) ([]repository.VariantCount, error)
	ConversionCounts(ctx context.Context, start, end time.Time) ([]repository.VariantCount, int64, error)
	UpsertAggregates(ctx context.Context, date time.Time, aggregates []domain.Aggregate) error
	ListAggregates(ctx context.Context, date time.Time) ([]domain.Aggregate, error)
	DeleteExposuresBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteConversionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result summarizes one daily run.
type Result struct {
	Date                 string `json:"date"`
	ProcessedFlags       int    `json:"processedFlags"`
	ProcessedExposures   int64  `json:"processedExposures"`
	ProcessedConversions int64  `json:"processedConversions"`
	DroppedConversions   int64  `json:"droppedConversions"`
	CleanedUpEvents      int64  `json:"cleanedUpEvents"`
}

// DayFailure records a backfill day that failed.
type DayFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// BackfillResult summarizes a backfill.
type BackfillResult struct {
	Days   []Result     `json:"days"`
	Failed []DayFailure `json:"failed,omitempty"`
}

// Options configures a Pipeline.
type Options struct {
	Location  *time.Location
	Retention time.Duration
}

// Pipeline computes daily aggregates.
type Pipeline struct {
	store     Store
	loc       *time.Location
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewPipeline creates a Pipeline. A nil location means UTC.
func NewPipeline(store Store, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Pipeline{
		store:     store,
		loc:       opts.Location,
		retention: opts.Retention,
		now:       time.Now,
		log:       logger.Named("aggregation"),
	}
}

// Location returns the zone day boundaries are computed in.
func (p *Pipeline) Location() *time.Location {
	return p.loc
}

// Yesterday returns the calendar day before now in the pipeline's zone.
func (p *Pipeline) Yesterday(now time.Time) time.Time {
	start, _ := p.dayBounds(now)
	return start.AddDate(0, 0, -1)
}

// ParseDate parses YYYY-MM-DD as a day in the pipeline's zone.
func (p *Pipeline) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, p.loc)
}

// dayBounds returns the half-open range [start, next) of date's calendar day.
func (p *Pipeline) dayBounds(date time.Time) (time.Time, time.Time) {
	d := date.In(p.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc)
	return start, start.AddDate(0, 0, 1)
}

type variantKey struct {
	flagID  string
	variant string
}

// RunDaily aggregates one calendar day and then applies retention cleanup.
func (p *Pipeline) RunDaily(ctx context.Context, date time.Time) (*Result, error) {
	started := time.Now()
	res, err := p.runDaily(ctx, date)
	metrics.AggregationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.AggregationRuns.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.AggregationRuns.WithLabelValues("success").Inc()
	return res, nil
}

func (p *Pipeline) runDaily(ctx context.Context, date time.Time) (*Result, error) {
	start, next := p.dayBounds(date)
	day := start.Format(time.DateOnly)
	log := p.log.With(zap.String("date", day))

	impressions, err := p.store.ExposureCounts(ctx, start, next)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", day, err)
	}
	conversions, dropped, err := p.store.ConversionCounts(ctx, start, next)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", day, err)
	}
	if dropped > 0 {
		log.Warn("conversions without exposure or experiment flag dropped", zap.Int64("dropped", dropped))
	}

	res := &Result{Date: day, DroppedConversions: dropped}
	converted := make(map[variantKey]int64, len(conversions))
	for _, c := range conversions {
		converted[variantKey{c.FlagID, c.VariantKey}] += c.Count
		res.ProcessedConversions += c.Count
	}

	flags := make(map[string]struct{})
	rows := make([]domain.Aggregate, 0, len(impressions))
	for _, i := range impressions {
		flags[i.FlagID] = struct{}{}
		res.ProcessedExposures += i.Count
		rows = append(rows, domain.Aggregate{
			Date:        start,
			FlagID:      i.FlagID,
			VariantKey:  i.VariantKey,
			Impressions: i.Count,
			Conversions: converted[variantKey{i.FlagID, i.VariantKey}],
		})
	}
	res.ProcessedFlags = len(flags)

	if len(rows) > 0 {
		if err := p.store.UpsertAggregates(ctx, start, rows); err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", day, err)
		}
	}

	cleaned, err := p.cleanup(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention cleanup: %w", err)
	}
	res.CleanedUpEvents = cleaned

	log.Info("daily aggregation completed",
		zap.Int("flags", res.ProcessedFlags),
		zap.Int64("exposures", res.ProcessedExposures),
		zap.Int64("conversions", res.ProcessedConversions),
		zap.Int64("cleaned_up", res.CleanedUpEvents),
	)
	return res, nil
}

// cleanup deletes raw events older than the retention window.
func (p *Pipeline) cleanup(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	var exposures, conversions int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := p.store.DeleteExposuresBefore(gctx, cutoff)
		exposures = n
		return err
	})
	g.Go(func() error {
		n, err := p.store.DeleteConversionsBefore(gctx, cutoff)
		conversions = n
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return exposures + conversions, nil
}

// Backfill runs every calendar day in [start, end] in order. A failed day is
// recorded and the loop continues; a cancelled context stops it before the
// next day. The returned error aggregates every failure.
func (p *Pipeline) Backfill(ctx context.Context, start, end time.Time) (*BackfillResult, error) {
	first, _ := p.dayBounds(start)
	last, _ := p.dayBounds(end)
	if first.After(last) {
		return nil, fmt.Errorf("backfill start %s is after end %s",
			first.Format(time.DateOnly), last.Format(time.DateOnly))
	}

	res := &BackfillResult{Days: []Result{}}
	var errs *multierror.Error
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		r, err := p.RunDaily(ctx, day)
		if err != nil {
			date := day.Format(time.DateOnly)
			p.log.Error("backfill day failed", zap.String("date", date), zap.Error(err))
			res.Failed = append(res.Failed, DayFailure{Date: date, Error: err.Error()})
			errs = multierror.Append(errs, err)
			continue
		}
		res.Days = append(res.Days, *r)
	}

	p.log.Info("backfill completed",
		zap.String("start", first.Format(time.DateOnly)),
		zap.String("end", last.Format(time.DateOnly)),
		zap.Int("days", len(res.Days)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, errs.ErrorOrNil()
}

// Aggregates returns the stored rollups for one day.
func (p *Pipeline) Aggregates(ctx context.Context, date time.Time) ([]domain.Aggregate, error) {
	start, _ := p.dayBounds(date)
	return p.store.ListAggregates(ctx, start)
}

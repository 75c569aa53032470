package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/aggregation"
)

// AggregationKind is the River kind of aggregation jobs.
const AggregationKind = "aggregation"

// Aggregation job types.
const (
	TypeDaily    = "daily"
	TypeBackfill = "backfill"
)

// AggregationArgs describes one aggregation job. A daily job without
// TargetDate aggregates yesterday as of the time it runs.
type AggregationArgs struct {
	Type       string `json:"type"`
	TargetDate string `json:"target_date,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

// Kind returns the job kind identifier.
func (AggregationArgs) Kind() string { return AggregationKind }

// NonFinalizedStates are the job states that block a duplicate insert.
var NonFinalizedStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRetryable,
	rivertype.JobStateRunning,
	rivertype.JobStateScheduled,
}

// InsertOpts makes identical jobs unique while one is still queued or running.
// A finished day can be queued again.
func (AggregationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: NonFinalizedStates,
		},
	}
}

// Runner is the part of the pipeline the worker drives.
type Runner interface {
	RunDaily(ctx context.Context, date time.Time) (*aggregation.Result, error)
	Backfill(ctx context.Context, start, end time.Time) (*aggregation.BackfillResult, error)
	Yesterday(now time.Time) time.Time
	Location() *time.Location
}

// AggregationWorker runs daily and backfill aggregation jobs.
type AggregationWorker struct {
	river.WorkerDefaults[AggregationArgs]
	runner Runner
	now    func() time.Time
}

// NewAggregationWorker creates an AggregationWorker.
func NewAggregationWorker(runner Runner) *AggregationWorker {
	return &AggregationWorker{runner: runner, now: time.Now}
}

// Timeout bounds a single attempt; a long backfill runs one day at a time
// and is safe to retry.
func (w *AggregationWorker) Timeout(*river.Job[AggregationArgs]) time.Duration {
	return time.Hour
}

// Work runs the job.
func (w *AggregationWorker) Work(ctx context.Context, job *river.Job[AggregationArgs]) error {
	if w == nil || w.runner == nil {
		return errors.New("aggregation worker is not initialized")
	}
	log := jobLogger(job)
	loc := w.runner.Location()

	switch job.Args.Type {
	case TypeDaily, "":
		target := w.runner.Yesterday(w.now())
		if job.Args.TargetDate != "" {
			d, err := parseJobDate("target_date", job.Args.TargetDate, loc)
			if err != nil {
				return err
			}
			target = d
		}
		res, err := w.runner.RunDaily(ctx, target)
		if err != nil {
			return err
		}
		log.Info("aggregation job completed",
			zap.String("date", res.Date),
			zap.Int("flags", res.ProcessedFlags),
		)
		return nil

	case TypeBackfill:
		start, err := parseJobDate("start_date", job.Args.StartDate, loc)
		if err != nil {
			return err
		}
		end, err := parseJobDate("end_date", job.Args.EndDate, loc)
		if err != nil {
			return err
		}
		if start.After(end) {
			return river.JobCancel(fmt.Errorf("start_date %s is after end_date %s", job.Args.StartDate, job.Args.EndDate))
		}
		res, err := w.runner.Backfill(ctx, start, end)
		if res != nil {
			log.Info("backfill job finished",
				zap.Int("days", len(res.Days)),
				zap.Int("failed", len(res.Failed)),
			)
		}
		return err

	default:
		return river.JobCancel(fmt.Errorf("unknown aggregation type %q", job.Args.Type))
	}
}

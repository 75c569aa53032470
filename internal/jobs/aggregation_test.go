package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/aggregation"
	"rollout.io/rollout/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

type fakeRunner struct {
	daily     []time.Time
	backfills [][2]time.Time
	dailyErr  error
	loc       *time.Location
}

func (r *fakeRunner) RunDaily(_ context.Context, date time.Time) (*aggregation.Result, error) {
	r.daily = append(r.daily, date)
	if r.dailyErr != nil {
		return nil, r.dailyErr
	}
	return &aggregation.Result{Date: date.Format(time.DateOnly)}, nil
}

func (r *fakeRunner) Backfill(_ context.Context, start, end time.Time) (*aggregation.BackfillResult, error) {
	r.backfills = append(r.backfills, [2]time.Time{start, end})
	return &aggregation.BackfillResult{}, nil
}

func (r *fakeRunner) Yesterday(now time.Time) time.Time {
	d := now.In(r.loc)
	return time.Date(d.Year(), d.Month(), d.Day()-1, 0, 0, 0, 0, r.loc)
}

func (r *fakeRunner) Location() *time.Location { return r.loc }

func job(args AggregationArgs) *river.Job[AggregationArgs] {
	return &river.Job[AggregationArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Kind: AggregationKind, Attempt: 1},
		Args:   args,
	}
}

func TestAggregationArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "aggregation", AggregationArgs{}.Kind())

	opts := AggregationArgs{}.InsertOpts()
	assert.Equal(t, river.QueueDefault, opts.Queue)
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.NotContains(t, opts.UniqueOpts.ByState, rivertype.JobStateCompleted)
	assert.Contains(t, opts.UniqueOpts.ByState, rivertype.JobStateRunning)
}

func TestAggregationWorker_Daily(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{loc: time.UTC}
	w := NewAggregationWorker(runner)
	w.now = func() time.Time { return time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Work(context.Background(), job(AggregationArgs{Type: TypeDaily})))
	require.NoError(t, w.Work(context.Background(), job(AggregationArgs{Type: TypeDaily, TargetDate: "2024-05-20"})))

	require.Len(t, runner.daily, 2)
	assert.Equal(t, "2024-06-01", runner.daily[0].Format(time.DateOnly))
	assert.Equal(t, "2024-05-20", runner.daily[1].Format(time.DateOnly))

	runner.dailyErr = errors.New("db down")
	assert.Error(t, w.Work(context.Background(), job(AggregationArgs{Type: TypeDaily})))
}

func TestAggregationWorker_Backfill(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{loc: time.UTC}
	w := NewAggregationWorker(runner)

	err := w.Work(context.Background(), job(AggregationArgs{Type: TypeBackfill, StartDate: "2024-05-01", EndDate: "2024-05-03"}))
	require.NoError(t, err)
	require.Len(t, runner.backfills, 1)
	assert.Equal(t, 1, runner.backfills[0][0].Day())
	assert.Equal(t, 3, runner.backfills[0][1].Day())
}

func TestAggregationWorker_CancelsBadArgs(t *testing.T) {
	t.Parallel()

	w := NewAggregationWorker(&fakeRunner{loc: time.UTC})
	tests := []struct {
		name string
		args AggregationArgs
		want string
	}{
		{"bad target date", AggregationArgs{Type: TypeDaily, TargetDate: "yesterday"}, "invalid target_date"},
		{"bad start", AggregationArgs{Type: TypeBackfill, StartDate: "x", EndDate: "2024-05-01"}, "invalid start_date"},
		{"reversed range", AggregationArgs{Type: TypeBackfill, StartDate: "2024-05-02", EndDate: "2024-05-01"}, "is after end_date"},
		{"unknown type", AggregationArgs{Type: "hourly"}, "unknown aggregation type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Work(context.Background(), job(tt.args))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAggregationWorker_Uninitialized(t *testing.T) {
	t.Parallel()

	var w *AggregationWorker
	assert.Error(t, w.Work(context.Background(), job(AggregationArgs{})))
}

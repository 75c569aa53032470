// Package scheduler arms the nightly aggregation job and queues out-of-band
// runs on River.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/jobs"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
)

// DailyJobName names the periodic nightly aggregation.
const DailyJobName = "daily-aggregation"

// DefaultSchedule runs the nightly aggregation at 02:00.
const DefaultSchedule = "0 2 * * *"

// Inserter enqueues jobs. *river.Client satisfies it.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// PeriodicRegistry holds periodic jobs. *river.PeriodicJobBundle satisfies it.
type PeriodicRegistry interface {
	Add(job *river.PeriodicJob) rivertype.PeriodicJobHandle
	Remove(handle rivertype.PeriodicJobHandle)
}

// StateCounter counts jobs of a kind per River state.
type StateCounter interface {
	CountByState(ctx context.Context, kind string) (map[string]int64, error)
}

// Options configures a Scheduler.
type Options struct {
	Schedule string
	Location *time.Location
}

type armed struct {
	handle   rivertype.PeriodicJobHandle
	schedule cron.Schedule
	spec     string
}

// Scheduler owns the named periodic aggregation trigger.
type Scheduler struct {
	inserter Inserter
	periodic PeriodicRegistry
	counter  StateCounter
	spec     string
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger

	mu    sync.Mutex
	armed map[string]armed
}

// New creates a Scheduler. Any dependency may be nil; operations that need a
// missing one return SCHEDULER_UNAVAILABLE.
func New(inserter Inserter, periodic PeriodicRegistry, counter StateCounter, opts Options) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		inserter: inserter,
		periodic: periodic,
		counter:  counter,
		spec:     opts.Schedule,
		loc:      opts.Location,
		now:      time.Now,
		log:      logger.Named("scheduler"),
		armed:    make(map[string]armed),
	}
}

// zonedSchedule evaluates a cron schedule in a fixed zone regardless of the
// zone of the time it is given.
type zonedSchedule struct {
	inner cron.Schedule
	loc   *time.Location
}

func (s zonedSchedule) Next(t time.Time) time.Time {
	return s.inner.Next(t.In(s.loc))
}

// ScheduleDaily registers the nightly job, replacing any earlier registration
// of the same name.
func (s *Scheduler) ScheduleDaily() error {
	if s.periodic == nil {
		return apperrors.ErrSchedulerUnavailable()
	}
	parsed, err := cron.ParseStandard(s.spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.spec, err)
	}
	schedule := zonedSchedule{inner: parsed, loc: s.loc}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.armed[DailyJobName]; ok {
		s.periodic.Remove(prev.handle)
		delete(s.armed, DailyJobName)
	}
	handle := s.periodic.Add(river.NewPeriodicJob(
		schedule,
		func() (river.JobArgs, *river.InsertOpts) {
			return jobs.AggregationArgs{Type: jobs.TypeDaily}, nil
		},
		nil,
	))
	s.armed[DailyJobName] = armed{handle: handle, schedule: schedule, spec: s.spec}

	s.log.Info("daily aggregation scheduled",
		zap.String("schedule", s.spec),
		zap.String("timezone", s.loc.String()),
		zap.Time("next_run_at", schedule.Next(s.now())),
	)
	return nil
}

// Unschedule removes the nightly job if it is registered.
func (s *Scheduler) Unschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.armed[DailyJobName]; ok && s.periodic != nil {
		s.periodic.Remove(prev.handle)
		delete(s.armed, DailyJobName)
	}
}

// Enqueued describes an inserted job.
type Enqueued struct {
	JobID     int64  `json:"jobId"`
	Duplicate bool   `json:"duplicate"`
	Type      string `json:"type"`
}

// TriggerDaily queues a daily run for date, or for yesterday as of run time
// when date is nil. An identical job that is still pending is reused.
func (s *Scheduler) TriggerDaily(ctx context.Context, date *time.Time) (*Enqueued, error) {
	args := jobs.AggregationArgs{Type: jobs.TypeDaily}
	if date != nil {
		args.TargetDate = date.In(s.loc).Format(time.DateOnly)
	}
	return s.insert(ctx, args)
}

// TriggerBackfill queues a backfill over [start, end].
func (s *Scheduler) TriggerBackfill(ctx context.Context, start, end time.Time) (*Enqueued, error) {
	from := start.In(s.loc).Format(time.DateOnly)
	to := end.In(s.loc).Format(time.DateOnly)
	if from > to {
		return nil, apperrors.ErrInvalidDateRange(from, to)
	}
	return s.insert(ctx, jobs.AggregationArgs{Type: jobs.TypeBackfill, StartDate: from, EndDate: to})
}

func (s *Scheduler) insert(ctx context.Context, args jobs.AggregationArgs) (*Enqueued, error) {
	if s.inserter == nil {
		return nil, apperrors.ErrSchedulerUnavailable()
	}
	res, err := s.inserter.Insert(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s aggregation: %w", args.Type, err)
	}
	out := &Enqueued{Type: args.Type, Duplicate: res.UniqueSkippedAsDuplicate}
	if res.Job != nil {
		out.JobID = res.Job.ID
	}
	s.log.Info("aggregation job enqueued",
		zap.String("type", args.Type),
		zap.Int64("job_id", out.JobID),
		zap.Bool("duplicate", out.Duplicate),
	)
	return out, nil
}

// PeriodicStatus describes one registered periodic job.
type PeriodicStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Timezone  string    `json:"timezone"`
	NextRunAt time.Time `json:"nextRunAt"`
}

// Status reports aggregation job counts and the periodic jobs.
type Status struct {
	Counts   map[string]int64 `json:"counts"`
	Periodic []PeriodicStatus `json:"periodic"`
}

// Status returns job counts per River state and the armed periodic jobs.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	if s.counter == nil {
		return nil, apperrors.ErrSchedulerUnavailable()
	}
	counts, err := s.counter.CountByState(ctx, jobs.AggregationKind)
	if err != nil {
		return nil, fmt.Errorf("count aggregation jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	periodic := make([]PeriodicStatus, 0, len(s.armed))
	for name, a := range s.armed {
		periodic = append(periodic, PeriodicStatus{
			Name:      name,
			Schedule:  a.spec,
			Timezone:  s.loc.String(),
			NextRunAt: a.schedule.Next(now),
		})
	}
	sort.Slice(periodic, func(i, j int) bool { return periodic[i].Name < periodic[j].Name })
	return &Status{Counts: counts, Periodic: periodic}, nil
}

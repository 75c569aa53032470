package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"rollout.io/rollout/internal/aggregation"
	"rollout.io/rollout/internal/api/handlers"
	"rollout.io/rollout/internal/jobs"
	"rollout.io/rollout/internal/repository"
	"rollout.io/rollout/internal/scheduler"
)

// AggregationModule owns the rollup pipeline, its River worker and the
// nightly trigger.
type AggregationModule struct {
	infra     *Infrastructure
	pipeline  *aggregation.Pipeline
	scheduler *scheduler.Scheduler
}

// NewAggregationModule builds the pipeline. The scheduler is created by
// BindRiver once the River client exists.
func NewAggregationModule(infra *Infrastructure) *AggregationModule {
	cfg := infra.Config.Aggregation
	return &AggregationModule{
		infra: infra,
		pipeline: aggregation.NewPipeline(repository.NewAggregateRepository(infra.Pool), aggregation.Options{
			Location:  cfg.Location(),
			Retention: cfg.Retention,
		}),
	}
}

func (m *AggregationModule) Name() string { return "aggregation" }

func (m *AggregationModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewAggregationWorker(m.pipeline))
}

// BindRiver creates the scheduler on the River client and arms the nightly
// job when aggregation is enabled.
func (m *AggregationModule) BindRiver() error {
	cfg := m.infra.Config.Aggregation
	opts := scheduler.Options{Schedule: cfg.Schedule, Location: cfg.Location()}
	client := m.infra.RiverClient
	if client == nil {
		m.scheduler = scheduler.New(nil, nil, nil, opts)
		return nil
	}
	m.scheduler = scheduler.New(client, client.PeriodicJobs(), scheduler.NewRiverJobCounter(m.infra.Pool), opts)
	if !cfg.Enabled {
		return nil
	}
	if err := m.scheduler.ScheduleDaily(); err != nil {
		return fmt.Errorf("schedule daily aggregation: %w", err)
	}
	return nil
}

func (m *AggregationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Aggregates = m.pipeline
	if m.scheduler != nil {
		deps.Scheduler = m.scheduler
	}
}

func (m *AggregationModule) Shutdown(context.Context) error {
	if m.scheduler != nil {
		m.scheduler.Unschedule()
	}
	return nil
}

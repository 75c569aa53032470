package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rollout.io/rollout/internal/aggregation"
	"rollout.io/rollout/internal/infrastructure"
	"rollout.io/rollout/internal/repository"
	"rollout.io/rollout/internal/scheduler"
)

func (c *cli) pipeline(db *infrastructure.DatabaseClients) *aggregation.Pipeline {
	return aggregation.NewPipeline(repository.NewAggregateRepository(db.Pool), aggregation.Options{
		Location:  c.cfg.Aggregation.Location(),
		Retention: c.cfg.Aggregation.Retention,
	})
}

// scheduler builds an insert-only scheduler; no workers run in this process.
func (c *cli) scheduler(db *infrastructure.DatabaseClients) (*scheduler.Scheduler, error) {
	if err := db.InitRiverClient(nil, c.cfg.River); err != nil {
		return nil, err
	}
	return scheduler.New(db.RiverClient, nil, scheduler.NewRiverJobCounter(db.Pool), scheduler.Options{
		Schedule: c.cfg.Aggregation.Schedule,
		Location: c.cfg.Aggregation.Location(),
	}), nil
}

func (c *cli) withDB(ctx context.Context, fn func(db *infrastructure.DatabaseClients) error) error {
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (c *cli) aggregateCmd() *cobra.Command {
	var (
		date    string
		enqueue bool
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate one day of exposures and conversions",
		Long: "Aggregate one day in the configured time zone. Without --date the previous day is used.\n" +
			"With --enqueue the run is queued as a River job for the server to execute.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd.Context(), func(db *infrastructure.DatabaseClients) error {
				p := c.pipeline(db)
				var target *time.Time
				if date != "" {
					d, err := p.ParseDate(date)
					if err != nil {
						return fmt.Errorf("--date: %w", err)
					}
					target = &d
				}

				if enqueue {
					s, err := c.scheduler(db)
					if err != nil {
						return err
					}
					job, err := s.TriggerDaily(cmd.Context(), target)
					if err != nil {
						return err
					}
					return c.printJSON(job)
				}

				day := p.Yesterday(time.Now())
				if target != nil {
					day = *target
				}
				res, err := p.RunDaily(cmd.Context(), day)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to aggregate (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue a River job instead of running in-process")
	return cmd
}

func (c *cli) backfillCmd() *cobra.Command {
	var (
		start, end string
		enqueue    bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Aggregate every day in an inclusive range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd.Context(), func(db *infrastructure.DatabaseClients) error {
				p := c.pipeline(db)
				from, err := p.ParseDate(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				to, err := p.ParseDate(end)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}

				if enqueue {
					s, err := c.scheduler(db)
					if err != nil {
						return err
					}
					job, err := s.TriggerBackfill(cmd.Context(), from, to)
					if err != nil {
						return err
					}
					return c.printJSON(job)
				}

				res, err := p.Backfill(cmd.Context(), from, to)
				if res != nil {
					if perr := c.printJSON(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue a River job instead of running in-process")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show aggregation job counts by state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd.Context(), func(db *infrastructure.DatabaseClients) error {
				s, err := c.scheduler(db)
				if err != nil {
					return err
				}
				status, err := s.Status(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(status)
			})
		},
	}
}

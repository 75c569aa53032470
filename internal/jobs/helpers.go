// Package jobs defines River job types for the aggregation pipeline.
//
// Job args carry dates as YYYY-MM-DD strings in the pipeline's time zone, so a
// job inserted by the CLI and one inserted by the server mean the same day.
package jobs

import (
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/pkg/logger"
)

// parseJobDate parses a date argument. A malformed date cancels the job since
// retrying cannot fix it.
func parseJobDate(field, value string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, river.JobCancel(fmt.Errorf("invalid %s %q: %w", field, value, err))
	}
	return d, nil
}

// jobLogger returns a logger tagged with the job's identity.
func jobLogger[T river.JobArgs](job *river.Job[T]) *zap.Logger {
	return logger.L().With(
		zap.Int64("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempt),
	)
}

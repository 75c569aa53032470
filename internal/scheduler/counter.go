package scheduler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/rivertype"
)

const countJobsByState = `
SELECT state::text, count(*)
FROM river_job
WHERE kind = $1
GROUP BY state`

// RiverJobCounter reads job counts straight from River's job table.
type RiverJobCounter struct {
	pool *pgxpool.Pool
}

// NewRiverJobCounter creates a RiverJobCounter.
func NewRiverJobCounter(pool *pgxpool.Pool) *RiverJobCounter {
	return &RiverJobCounter{pool: pool}
}

// CountByState returns a count for every River state, zero when absent.
func (c *RiverJobCounter) CountByState(ctx context.Context, kind string) (map[string]int64, error) {
	counts := make(map[string]int64, len(rivertype.JobStates()))
	for _, state := range rivertype.JobStates() {
		counts[string(state)] = 0
	}

	rows, err := c.pool.Query(ctx, countJobsByState, kind)
	if err != nil {
		return nil, fmt.Errorf("query river_job: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan river_job count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read river_job counts: %w", err)
	}
	return counts, nil
}

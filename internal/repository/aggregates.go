package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/repository/sqlc"
)

// VariantCount is an event count for one (flag, variant) pair. VariantKey is
// "" when the events carried no variant.
type VariantCount struct {
	FlagID     string
	VariantKey string
	Count      int64
}

// AggregateRepository reads raw event counts and writes daily rollups.
type AggregateRepository struct {
	pool    *pgxpool.Pool
	queries *sqlc.Queries
}

// NewAggregateRepository creates an AggregateRepository on the shared pool.
func NewAggregateRepository(pool *pgxpool.Pool) *AggregateRepository {
	return &AggregateRepository{pool: pool, queries: sqlc.New(pool)}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func pgDate(t time.Time) pgtype.Date {
	return pgtype.Date{
		Time:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}

// AggregationLockKey derives the advisory lock key for one calendar day.
func AggregationLockKey(date time.Time) int64 {
	return int64(xxhash.Sum64String("rollout:aggregation:" + date.Format(time.DateOnly)))
}

// ExposureCounts groups exposures with start <= timestamp < end.
func (r *AggregateRepository) ExposureCounts(ctx context.Context, start, end time.Time) ([]VariantCount, error) {
	rows, err := r.queries.CountExposuresByFlagVariant(ctx, sqlc.CountExposuresByFlagVariantParams{
		StartAt: timestamptz(start),
		EndAt:   timestamptz(end),
	})
	if err != nil {
		return nil, fmt.Errorf("count exposures: %w", err)
	}
	out := make([]VariantCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, VariantCount{FlagID: row.FlagID, VariantKey: row.VariantKey, Count: row.Impressions})
	}
	return out, nil
}

// ConversionCounts groups conversions in range by the flag and variant of
// their exposure, or by the experiment's flag when no exposure is linked.
// Conversions that resolve to no flag are summed into dropped.
func (r *AggregateRepository) ConversionCounts(ctx context.Context, start, end time.Time) (counts []VariantCount, dropped int64, err error) {
	rows, err := r.queries.CountConversionsByFlagVariant(ctx, sqlc.CountConversionsByFlagVariantParams{
		StartAt: timestamptz(start),
		EndAt:   timestamptz(end),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("count conversions: %w", err)
	}
	counts = make([]VariantCount, 0, len(rows))
	for _, row := range rows {
		if !row.FlagID.Valid {
			dropped += row.Conversions
			continue
		}
		counts = append(counts, VariantCount{FlagID: row.FlagID.String, VariantKey: row.VariantKey, Count: row.Conversions})
	}
	return counts, dropped, nil
}

// UpsertAggregates overwrites the rollups for one day in a single transaction
// holding the day's advisory lock.
func (r *AggregateRepository) UpsertAggregates(ctx context.Context, date time.Time, aggregates []domain.Aggregate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin aggregate tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	qtx := r.queries.WithTx(tx)
	if err := qtx.AcquireAggregationLock(ctx, AggregationLockKey(date)); err != nil {
		return fmt.Errorf("acquire aggregation lock: %w", err)
	}
	day := pgDate(date)
	for _, agg := range aggregates {
		err := qtx.UpsertAggregate(ctx, sqlc.UpsertAggregateParams{
			Date:        day,
			FlagID:      agg.FlagID,
			VariantKey:  agg.VariantKey,
			Impressions: agg.Impressions,
			Conversions: agg.Conversions,
		})
		if err != nil {
			return fmt.Errorf("upsert aggregate %s/%s: %w", agg.FlagID, agg.VariantKey, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit aggregate tx: %w", err)
	}
	return nil
}

// ListAggregates returns the stored rollups for one day.
func (r *AggregateRepository) ListAggregates(ctx context.Context, date time.Time) ([]domain.Aggregate, error) {
	rows, err := r.queries.ListAggregatesByDate(ctx, pgDate(date))
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	out := make([]domain.Aggregate, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Aggregate{
			Date:        row.Date.Time,
			FlagID:      row.FlagID,
			VariantKey:  row.VariantKey,
			Impressions: row.Impressions,
			Conversions: row.Conversions,
		})
	}
	return out, nil
}

// DeleteExposuresBefore removes exposures older than cutoff.
func (r *AggregateRepository) DeleteExposuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.queries.DeleteExposuresBefore(ctx, timestamptz(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete exposures: %w", err)
	}
	return n, nil
}

// DeleteConversionsBefore removes conversions older than cutoff.
func (r *AggregateRepository) DeleteConversionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.queries.DeleteConversionsBefore(ctx, timestamptz(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete conversions: %w", err)
	}
	return n, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/repository/sqlc"
)

// EventRepository persists exposures and conversions.
type EventRepository struct {
	queries *sqlc.Queries
}

// NewEventRepository creates an EventRepository on the shared pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{queries: sqlc.New(pool)}
}

func optionalText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// InsertExposure stores an exposure.
func (r *EventRepository) InsertExposure(ctx context.Context, e domain.Exposure) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode exposure metadata: %w", err)
		}
		metadata = raw
	}
	err := r.queries.InsertExposure(ctx, sqlc.InsertExposureParams{
		ID:         e.ID,
		FlagID:     e.FlagID,
		UserID:     optionalText(e.UserID),
		VariantKey: optionalText(e.VariantKey),
		Timestamp:  pgtype.Timestamptz{Time: e.Timestamp, Valid: true},
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("insert exposure: %w", err)
	}
	return nil
}

// GetExposure loads an exposure by id.
func (r *EventRepository) GetExposure(ctx context.Context, id string) (domain.Exposure, error) {
	row, err := r.queries.GetExposure(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exposure{}, apperrors.ErrExposureNotFound(id)
	}
	if err != nil {
		return domain.Exposure{}, fmt.Errorf("get exposure %q: %w", id, err)
	}
	e := domain.Exposure{
		ID:         row.ID,
		FlagID:     row.FlagID,
		UserID:     textPtr(row.UserID),
		VariantKey: textPtr(row.VariantKey),
		Timestamp:  row.Timestamp.Time,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &e.Metadata); err != nil {
			return domain.Exposure{}, fmt.Errorf("decode exposure metadata: %w", err)
		}
	}
	return e, nil
}

// GetExperiment loads an experiment by id.
func (r *EventRepository) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	row, err := r.queries.GetExperiment(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Experiment{}, apperrors.ErrExperimentNotFound(id)
	}
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("get experiment %q: %w", id, err)
	}
	return domain.Experiment{ID: row.ID, FlagID: row.FlagID, Name: row.Name}, nil
}

// InsertConversion stores a conversion.
func (r *EventRepository) InsertConversion(ctx context.Context, c domain.Conversion) error {
	err := r.queries.InsertConversion(ctx, sqlc.InsertConversionParams{
		ID:           c.ID,
		ExperimentID: c.ExperimentID,
		ExposureID:   optionalText(c.ExposureID),
		MetricKey:    c.MetricKey,
		Value:        c.Value,
		Timestamp:    pgtype.Timestamptz{Time: c.Timestamp, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

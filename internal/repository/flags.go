// Package repository maps the sqlc query layer onto domain types.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/constraint"
	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/repository/sqlc"
)

// FlagRepository reads flags with their variants and targets.
type FlagRepository struct {
	pool    *pgxpool.Pool
	queries *sqlc.Queries
}

// NewFlagRepository creates a FlagRepository on the shared pool.
func NewFlagRepository(pool *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{pool: pool, queries: sqlc.New(pool)}
}

// GetSnapshotByKey loads one flag by key. A missing flag yields an AppError
// with code FLAG_NOT_FOUND.
func (r *FlagRepository) GetSnapshotByKey(ctx context.Context, key string) (*domain.FlagSnapshot, error) {
	row, err := r.queries.GetFlagByKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrFlagNotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %q: %w", key, err)
	}
	snaps, err := r.assemble(ctx, []sqlc.FeatureFlag{row})
	if err != nil {
		return nil, err
	}
	return snaps[0], nil
}

// GetSnapshotByID loads one flag by id.
func (r *FlagRepository) GetSnapshotByID(ctx context.Context, id string) (*domain.FlagSnapshot, error) {
	row, err := r.queries.GetFlagByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrFlagNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %q: %w", id, err)
	}
	snaps, err := r.assemble(ctx, []sqlc.FeatureFlag{row})
	if err != nil {
		return nil, err
	}
	return snaps[0], nil
}

// ListFlagSnapshots loads every flag.
func (r *FlagRepository) ListFlagSnapshots(ctx context.Context) ([]*domain.FlagSnapshot, error) {
	rows, err := r.queries.ListFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return r.assemble(ctx, rows)
}

// ListFlagKeys returns every flag key in key order.
func (r *FlagRepository) ListFlagKeys(ctx context.Context) ([]string, error) {
	keys, err := r.queries.ListFlagKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flag keys: %w", err)
	}
	return keys, nil
}

// SetEnabled flips a flag's enabled state and returns the updated flag.
func (r *FlagRepository) SetEnabled(ctx context.Context, id string, enabled bool) (domain.FeatureFlag, error) {
	row, err := r.queries.SetFlagEnabled(ctx, sqlc.SetFlagEnabledParams{ID: id, Enabled: enabled})
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeatureFlag{}, apperrors.ErrFlagNotFound(id)
	}
	if err != nil {
		return domain.FeatureFlag{}, fmt.Errorf("set flag %q enabled: %w", id, err)
	}
	return toFeatureFlag(row), nil
}

// assemble attaches variants and targets to flag rows with one query each.
func (r *FlagRepository) assemble(ctx context.Context, rows []sqlc.FeatureFlag) ([]*domain.FlagSnapshot, error) {
	ids := make([]string, len(rows))
	byID := make(map[string]*domain.FlagSnapshot, len(rows))
	out := make([]*domain.FlagSnapshot, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		snap := &domain.FlagSnapshot{
			FeatureFlag: toFeatureFlag(row),
			Variants:    []domain.FlagVariant{},
			Targets:     []domain.FlagTarget{},
		}
		byID[row.ID] = snap
		out[i] = snap
	}

	variants, err := r.queries.ListVariantsByFlagIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	for _, v := range variants {
		snap := byID[v.FlagID]
		snap.Variants = append(snap.Variants, domain.FlagVariant{
			ID:     v.ID,
			Key:    v.Key,
			Weight: int(v.Weight),
		})
	}

	targets, err := r.queries.ListTargetsByFlagIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		snap := byID[t.FlagID]
		target := domain.FlagTarget{
			ID:         t.ID,
			Percentage: int(t.Percentage),
		}
		rules, err := constraint.Parse(t.Constraints)
		if err != nil {
			// Unreadable constraints must not open the flag to everyone.
			logger.Warn("invalid target constraints, target will never match",
				zap.String("flag_key", snap.Key),
				zap.String("target_id", t.ID),
				zap.Error(err),
			)
			rules = &constraint.RuleSet{Rules: []constraint.Rule{{Operator: constraint.OpUnknown}}}
		}
		target.Constraints = rules
		if t.EnvironmentID.Valid {
			target.Environment = &domain.Environment{ID: t.EnvironmentID.String, Name: t.EnvironmentName.String}
		}
		snap.Targets = append(snap.Targets, target)
	}
	return out, nil
}

func toFeatureFlag(row sqlc.FeatureFlag) domain.FeatureFlag {
	return domain.FeatureFlag{
		ID:          row.ID,
		Key:         row.Key,
		Name:        row.Name,
		Description: row.Description,
		Type:        domain.FlagType(row.Type),
		Enabled:     row.Enabled,
	}
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/repository/sqlc"
)

// SaveEnvironment creates or renames an environment.
func (r *FlagRepository) SaveEnvironment(ctx context.Context, env domain.Environment) error {
	if err := r.queries.UpsertEnvironment(ctx, sqlc.UpsertEnvironmentParams{ID: env.ID, Name: env.Name}); err != nil {
		return fmt.Errorf("upsert environment %q: %w", env.Name, err)
	}
	return nil
}

// SaveExperiment creates or updates an experiment.
func (r *FlagRepository) SaveExperiment(ctx context.Context, exp domain.Experiment) error {
	err := r.queries.UpsertExperiment(ctx, sqlc.UpsertExperimentParams{ID: exp.ID, FlagID: exp.FlagID, Name: exp.Name})
	if err != nil {
		return fmt.Errorf("upsert experiment %q: %w", exp.ID, err)
	}
	return nil
}

// SaveSnapshot writes a flag and replaces its variants and targets in one
// transaction. Slice order becomes the stored position.
func (r *FlagRepository) SaveSnapshot(ctx context.Context, snap *domain.FlagSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flag tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	qtx := r.queries.WithTx(tx)
	err = qtx.UpsertFlag(ctx, sqlc.UpsertFlagParams{
		ID:          snap.ID,
		Key:         snap.Key,
		Name:        snap.Name,
		Description: snap.Description,
		Type:        string(snap.Type),
		Enabled:     snap.Enabled,
	})
	if err != nil {
		return fmt.Errorf("upsert flag %q: %w", snap.Key, err)
	}
	if err := qtx.DeleteFlagVariants(ctx, snap.ID); err != nil {
		return fmt.Errorf("clear variants of %q: %w", snap.Key, err)
	}
	if err := qtx.DeleteFlagTargets(ctx, snap.ID); err != nil {
		return fmt.Errorf("clear targets of %q: %w", snap.Key, err)
	}

	for i, v := range snap.Variants {
		err := qtx.InsertVariant(ctx, sqlc.InsertVariantParams{
			ID:       v.ID,
			FlagID:   snap.ID,
			Key:      v.Key,
			Weight:   int32(v.Weight),
			Position: int32(i),
		})
		if err != nil {
			return fmt.Errorf("insert variant %q of %q: %w", v.Key, snap.Key, err)
		}
	}

	for i, t := range snap.Targets {
		var rules []byte
		if t.Constraints != nil {
			rules, err = json.Marshal(t.Constraints)
			if err != nil {
				return fmt.Errorf("encode constraints of target %q: %w", t.ID, err)
			}
		}
		params := sqlc.InsertTargetParams{
			ID:          t.ID,
			FlagID:      snap.ID,
			Percentage:  int32(t.Percentage),
			Constraints: rules,
			Position:    int32(i),
		}
		if t.Environment != nil {
			params.EnvironmentID.String = t.Environment.ID
			params.EnvironmentID.Valid = true
		}
		if err := qtx.InsertTarget(ctx, params); err != nil {
			return fmt.Errorf("insert target %q of %q: %w", t.ID, snap.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flag tx: %w", err)
	}
	return nil
}

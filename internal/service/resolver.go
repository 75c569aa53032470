// Package service holds the decision engine, the event recorder and the flag
// admin operations.
//
// Services read flags through FlagResolver, which consults the cache before
// the relational store. Mutations go through the repository first and touch
// the cache only after commit.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/domain"
	apperrors "rollout.io/rollout/internal/pkg/errors"
)

// FlagStore is the relational side of flag lookups.
type FlagStore interface {
	GetSnapshotByKey(ctx context.Context, key string) (*domain.FlagSnapshot, error)
	ListFlagKeys(ctx context.Context) ([]string, error)
}

// FlagResolver is the two-tier flag lookup: cache by key, then store by key,
// populating the cache on the way back.
type FlagResolver struct {
	cache *cache.FlagCache
	store FlagStore
}

// NewFlagResolver creates a FlagResolver.
func NewFlagResolver(flagCache *cache.FlagCache, store FlagStore) *FlagResolver {
	return &FlagResolver{cache: flagCache, store: store}
}

// Resolve returns the flag with the given key. A missing flag is reported as
// an AppError wrapping apperrors.ErrNotFound.
func (r *FlagResolver) Resolve(ctx context.Context, key string) (*domain.FlagSnapshot, error) {
	if snap, ok := r.cache.GetByKey(ctx, key); ok {
		return snap, nil
	}
	snap, err := r.store.GetSnapshotByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	r.cache.CacheFlag(ctx, snap)
	return snap, nil
}

// Keys lists every flag key, from the cache index when it is warm.
func (r *FlagResolver) Keys(ctx context.Context) ([]string, error) {
	if snaps, ok := r.cache.All(ctx); ok && len(snaps) > 0 {
		keys := make([]string, 0, len(snaps))
		for _, s := range snaps {
			keys = append(keys, s.Key)
		}
		return keys, nil
	}
	return r.store.ListFlagKeys(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

func flagField(key string) zap.Field {
	return zap.String("flag_key", key)
}

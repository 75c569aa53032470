package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/domain"
)

type staticLoader struct {
	snaps []*domain.FlagSnapshot
	err   error
}

func (l staticLoader) ListFlagSnapshots(context.Context) ([]*domain.FlagSnapshot, error) {
	return l.snaps, l.err
}

func snapshot(id, key string) *domain.FlagSnapshot {
	return &domain.FlagSnapshot{
		FeatureFlag: domain.FeatureFlag{ID: id, Key: key, Name: key, Type: domain.FlagTypeBoolean, Enabled: true},
		Variants:    []domain.FlagVariant{},
		Targets:     []domain.FlagTarget{},
	}
}

func TestFlagCache_CacheAndRead(t *testing.T) {
	t.Parallel()

	for name, store := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fc := NewFlagCache(store, FlagCacheOptions{FlagTTL: time.Minute, DecisionTTL: time.Minute})

			_, ok := fc.GetByKey(ctx, "checkout")
			assert.False(t, ok)

			fc.CacheFlag(ctx, snapshot("f1", "checkout"))

			byKey, ok := fc.GetByKey(ctx, "checkout")
			require.True(t, ok)
			assert.Equal(t, "f1", byKey.ID)

			byID, ok := fc.GetByID(ctx, "f1")
			require.True(t, ok)
			assert.Equal(t, "checkout", byID.Key)

			all, ok := fc.All(ctx)
			require.True(t, ok)
			assert.Len(t, all, 1)
		})
	}
}

func TestFlagCache_InvalidateSweepsDecisions(t *testing.T) {
	t.Parallel()

	for name, store := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fc := NewFlagCache(store, FlagCacheOptions{FlagTTL: time.Minute, DecisionTTL: time.Minute})

			fc.CacheFlag(ctx, snapshot("f1", "checkout"))
			fc.CacheFlag(ctx, snapshot("f2", "search"))
			decision := domain.Decision{Enabled: true, Reason: domain.ReasonBooleanFlag}
			fc.SetDecision(ctx, "client-1", "production", "h1", "checkout", decision)
			fc.SetDecision(ctx, "client-2", "", "h2", "checkout", decision)
			fc.SetDecision(ctx, "client-1", "production", "h1", "search", decision)

			got, ok := fc.GetDecision(ctx, "client-1", "production", "h1", "checkout")
			require.True(t, ok)
			assert.Equal(t, decision, got)

			require.NoError(t, fc.Invalidate(ctx, "f1", "checkout"))

			_, ok = fc.GetByKey(ctx, "checkout")
			assert.False(t, ok)
			_, ok = fc.GetByID(ctx, "f1")
			assert.False(t, ok)
			_, ok = fc.GetDecision(ctx, "client-1", "production", "h1", "checkout")
			assert.False(t, ok)
			_, ok = fc.GetDecision(ctx, "client-2", "", "h2", "checkout")
			assert.False(t, ok)

			_, ok = fc.GetByKey(ctx, "search")
			assert.True(t, ok, "other flags stay cached")
			_, ok = fc.GetDecision(ctx, "client-1", "production", "h1", "search")
			assert.True(t, ok)

			require.NoError(t, fc.InvalidateAll(ctx))
			_, ok = fc.GetByKey(ctx, "search")
			assert.False(t, ok)
			_, ok = fc.GetDecision(ctx, "client-1", "production", "h1", "search")
			assert.False(t, ok)
		})
	}
}

func TestFlagCache_DecisionCacheDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fc := NewFlagCache(NewMemoryStore(), FlagCacheOptions{DecisionTTL: 0})
	assert.False(t, fc.DecisionCacheEnabled())

	fc.SetDecision(ctx, "c", "", "h", "k", domain.Decision{Enabled: true})
	_, ok := fc.GetDecision(ctx, "c", "", "h", "k")
	assert.False(t, ok)
}

func TestFlagCache_WarmUp(t *testing.T) {
	t.Parallel()

	_, rs := newRedisStoreForTest(t)
	ctx := context.Background()
	fc := NewFlagCache(rs, FlagCacheOptions{})

	n, err := fc.WarmUp(ctx, staticLoader{snaps: []*domain.FlagSnapshot{
		snapshot("f1", "a"), snapshot("f2", "b"), snapshot("f3", "c"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, ok := fc.All(ctx)
	require.True(t, ok)
	assert.Len(t, all, 3)

	_, err = fc.WarmUp(ctx, staticLoader{err: errors.New("db down")})
	assert.Error(t, err)
}

func TestFlagCache_StoreFailureIsMiss(t *testing.T) {
	t.Parallel()

	m, rs := newRedisStoreForTest(t)
	ctx := context.Background()
	fc := NewFlagCache(rs, FlagCacheOptions{DecisionTTL: time.Minute})
	fc.CacheFlag(ctx, snapshot("f1", "checkout"))

	m.Close()

	_, ok := fc.GetByKey(ctx, "checkout")
	assert.False(t, ok)
	_, ok = fc.GetDecision(ctx, "c", "", "h", "checkout")
	assert.False(t, ok)
	_, ok = fc.All(ctx)
	assert.False(t, ok)
	fc.CacheFlag(ctx, snapshot("f2", "search"))
}

func TestContextHash(t *testing.T) {
	t.Parallel()

	a := ContextHash(map[string]any{"country": "US", "plan": "pro"})
	b := ContextHash(map[string]any{"plan": "pro", "country": "US"})
	c := ContextHash(map[string]any{"plan": "free", "country": "US"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "0", ContextHash(nil))
	assert.Equal(t, "", ContextHash(map[string]any{"bad": make(chan int)}))
}

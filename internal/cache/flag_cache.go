package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
)

// Key layout shared with any other reader of the cache.
const (
	flagKeyPrefix     = "flag:"
	flagIndexKey      = "flags:all"
	decisionKeyPrefix = "decision:"
)

// Default TTLs.
const (
	DefaultFlagTTL     = 5 * time.Minute
	DefaultDecisionTTL = 60 * time.Second
)

const (
	lookupFlag     = "flag"
	lookupDecision = "decision"
)

// SnapshotLoader lists every flag with variants and targets.
type SnapshotLoader interface {
	ListFlagSnapshots(ctx context.Context) ([]*domain.FlagSnapshot, error)
}

// FlagCacheOptions configures a FlagCache.
type FlagCacheOptions struct {
	FlagTTL time.Duration
	// DecisionTTL of zero disables the decision-result cache.
	DecisionTTL time.Duration
}

// FlagCache stores flag snapshots and per-client decisions in a Store.
//
// Snapshots are written twice: under flag:<id> with a TTL and as field <key>
// of the flags:all hash, which has no per-field expiry. Lookups by key read
// the hash.
type FlagCache struct {
	store       Store
	flagTTL     time.Duration
	decisionTTL time.Duration
	log         *zap.Logger
}

// NewFlagCache creates a FlagCache over store.
func NewFlagCache(store Store, opts FlagCacheOptions) *FlagCache {
	if opts.FlagTTL <= 0 {
		opts.FlagTTL = DefaultFlagTTL
	}
	if opts.DecisionTTL < 0 {
		opts.DecisionTTL = 0
	}
	return &FlagCache{
		store:       store,
		flagTTL:     opts.FlagTTL,
		decisionTTL: opts.DecisionTTL,
		log:         logger.Named("cache"),
	}
}

func flagIDKey(id string) string {
	return flagKeyPrefix + id
}

func decisionKey(clientID, environment, contextHash, flagKey string) string {
	return decisionKeyPrefix + clientID + ":" + environment + ":" + contextHash + ":" + flagKey
}

func decisionSweepPattern(flagKey string) string {
	return decisionKeyPrefix + "*:" + EscapeGlob(flagKey)
}

// CacheFlag writes the snapshot under both its id and its key. Concurrent
// writers race; the last write wins.
func (c *FlagCache) CacheFlag(ctx context.Context, snap *domain.FlagSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		c.log.Warn("encode flag snapshot", zap.String("flag_key", snap.Key), zap.Error(err))
		return
	}
	writes := []Write{
		{Key: flagIDKey(snap.ID), Value: payload, TTL: c.flagTTL},
		{Key: flagIndexKey, Field: snap.Key, Value: payload},
	}
	if err := c.store.SetBatch(ctx, writes); err != nil {
		c.log.Warn("cache flag snapshot", zap.String("flag_key", snap.Key), zap.Error(err))
	}
}

// GetByKey returns the cached snapshot for a flag key.
func (c *FlagCache) GetByKey(ctx context.Context, key string) (*domain.FlagSnapshot, bool) {
	raw, ok, err := c.store.HGet(ctx, flagIndexKey, key)
	return c.decodeSnapshot(raw, ok, err, zap.String("flag_key", key))
}

// GetByID returns the cached snapshot for a flag id.
func (c *FlagCache) GetByID(ctx context.Context, id string) (*domain.FlagSnapshot, bool) {
	raw, ok, err := c.store.Get(ctx, flagIDKey(id))
	return c.decodeSnapshot(raw, ok, err, zap.String("flag_id", id))
}

func (c *FlagCache) decodeSnapshot(raw []byte, ok bool, err error, field zap.Field) (*domain.FlagSnapshot, bool) {
	if err != nil {
		metrics.CacheLookups.WithLabelValues(lookupFlag, metrics.ResultError).Inc()
		c.log.Warn("read flag snapshot", field, zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(lookupFlag, metrics.ResultMiss).Inc()
		return nil, false
	}
	var snap domain.FlagSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		metrics.CacheLookups.WithLabelValues(lookupFlag, metrics.ResultError).Inc()
		c.log.Warn("decode flag snapshot", field, zap.Error(err))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(lookupFlag, metrics.ResultHit).Inc()
	return &snap, true
}

// All returns every snapshot in the key index. ok is false when the index is
// empty or unreadable.
func (c *FlagCache) All(ctx context.Context) ([]*domain.FlagSnapshot, bool) {
	entries, err := c.store.HGetAll(ctx, flagIndexKey)
	if err != nil {
		c.log.Warn("read flag index", zap.Error(err))
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}
	out := make([]*domain.FlagSnapshot, 0, len(entries))
	for key, raw := range entries {
		var snap domain.FlagSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			c.log.Warn("decode flag snapshot", zap.String("flag_key", key), zap.Error(err))
			return nil, false
		}
		out = append(out, &snap)
	}
	return out, true
}

// Invalidate removes a flag from both indexes and sweeps its cached decisions.
func (c *FlagCache) Invalidate(ctx context.Context, id, key string) error {
	if err := c.store.Del(ctx, flagIDKey(id)); err != nil {
		return fmt.Errorf("delete flag %s: %w", id, err)
	}
	if err := c.store.HDel(ctx, flagIndexKey, key); err != nil {
		return fmt.Errorf("delete flag index field %s: %w", key, err)
	}
	keys, err := c.store.Keys(ctx, decisionSweepPattern(key))
	if err != nil {
		return fmt.Errorf("list decisions for %s: %w", key, err)
	}
	if len(keys) > 0 {
		if err := c.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("delete decisions for %s: %w", key, err)
		}
	}
	c.log.Debug("flag invalidated",
		zap.String("flag_id", id),
		zap.String("flag_key", key),
		zap.Int("decisions", len(keys)),
	)
	return nil
}

// InvalidateAll drops every flag snapshot and cached decision.
func (c *FlagCache) InvalidateAll(ctx context.Context) error {
	var keys []string
	for _, pattern := range []string{flagKeyPrefix + "*", decisionKeyPrefix + "*"} {
		found, err := c.store.Keys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("list %s: %w", pattern, err)
		}
		keys = append(keys, found...)
	}
	keys = append(keys, flagIndexKey)
	if err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete cached flags: %w", err)
	}
	return nil
}

// WarmUp loads every flag and writes it to the cache in one batch. It returns
// the number of flags written.
func (c *FlagCache) WarmUp(ctx context.Context, loader SnapshotLoader) (int, error) {
	snaps, err := loader.ListFlagSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("load flags: %w", err)
	}
	writes := make([]Write, 0, len(snaps)*2)
	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			c.log.Warn("encode flag snapshot", zap.String("flag_key", snap.Key), zap.Error(err))
			continue
		}
		writes = append(writes,
			Write{Key: flagIDKey(snap.ID), Value: payload, TTL: c.flagTTL},
			Write{Key: flagIndexKey, Field: snap.Key, Value: payload},
		)
	}
	if err := c.store.SetBatch(ctx, writes); err != nil {
		return 0, fmt.Errorf("write flags: %w", err)
	}
	c.log.Info("flag cache warmed", zap.Int("flags", len(writes)/2))
	return len(writes) / 2, nil
}

// DecisionCacheEnabled reports whether decision results are cached.
func (c *FlagCache) DecisionCacheEnabled() bool {
	return c.decisionTTL > 0
}

// GetDecision returns a cached decision.
func (c *FlagCache) GetDecision(ctx context.Context, clientID, environment, contextHash, flagKey string) (domain.Decision, bool) {
	if !c.DecisionCacheEnabled() || contextHash == "" {
		return domain.Decision{}, false
	}
	raw, ok, err := c.store.Get(ctx, decisionKey(clientID, environment, contextHash, flagKey))
	if err != nil {
		metrics.CacheLookups.WithLabelValues(lookupDecision, metrics.ResultError).Inc()
		c.log.Warn("read cached decision", zap.String("flag_key", flagKey), zap.Error(err))
		return domain.Decision{}, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(lookupDecision, metrics.ResultMiss).Inc()
		return domain.Decision{}, false
	}
	var d domain.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		metrics.CacheLookups.WithLabelValues(lookupDecision, metrics.ResultError).Inc()
		return domain.Decision{}, false
	}
	metrics.CacheLookups.WithLabelValues(lookupDecision, metrics.ResultHit).Inc()
	return d, true
}

// SetDecision caches a decision for the decision TTL.
func (c *FlagCache) SetDecision(ctx context.Context, clientID, environment, contextHash, flagKey string, d domain.Decision) {
	if !c.DecisionCacheEnabled() || contextHash == "" {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, decisionKey(clientID, environment, contextHash, flagKey), payload, c.decisionTTL); err != nil {
		c.log.Warn("cache decision", zap.String("flag_key", flagKey), zap.Error(err))
	}
}

// ContextHash fingerprints a client context. encoding/json sorts map keys, so
// equal maps hash equally. It returns "" for contexts that cannot be encoded,
// which bypasses the decision cache.
func ContextHash(ctx map[string]any) string {
	if len(ctx) == 0 {
		return "0"
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(raw), 36)
}

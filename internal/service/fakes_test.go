package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/hashing"
	apperrors "rollout.io/rollout/internal/pkg/errors"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

var errStoreDown = errors.New("store down")

type fakeFlagStore struct {
	mu    sync.Mutex
	flags map[string]*domain.FlagSnapshot
	reads int
	err   error
}

func newFakeFlagStore(snaps ...*domain.FlagSnapshot) *fakeFlagStore {
	s := &fakeFlagStore{flags: make(map[string]*domain.FlagSnapshot)}
	for _, snap := range snaps {
		s.flags[snap.Key] = snap
	}
	return s
}

func (s *fakeFlagStore) GetSnapshotByKey(_ context.Context, key string) (*domain.FlagSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	snap, ok := s.flags[key]
	if !ok {
		return nil, apperrors.ErrFlagNotFound(key)
	}
	return snap, nil
}

func (s *fakeFlagStore) GetSnapshotByID(_ context.Context, id string) (*domain.FlagSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.flags {
		if snap.ID == id {
			return snap, nil
		}
	}
	return nil, apperrors.ErrFlagNotFound(id)
}

func (s *fakeFlagStore) ListFlagKeys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	keys := make([]string, 0, len(s.flags))
	for k := range s.flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeFlagStore) ListFlagSnapshots(context.Context) ([]*domain.FlagSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.FlagSnapshot, 0, len(s.flags))
	for _, snap := range s.flags {
		out = append(out, snap)
	}
	return out, nil
}

func (s *fakeFlagStore) SetEnabled(_ context.Context, id string, enabled bool) (domain.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, snap := range s.flags {
		if snap.ID == id {
			next := *snap
			next.Enabled = enabled
			s.flags[key] = &next
			return next.FeatureFlag, nil
		}
	}
	return domain.FeatureFlag{}, apperrors.ErrFlagNotFound(id)
}

func (s *fakeFlagStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeEventStore struct {
	mu          sync.Mutex
	exposures   []domain.Exposure
	conversions []domain.Conversion
	experiments map[string]domain.Experiment
	insertErr   error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{experiments: map[string]domain.Experiment{
		"x1": {ID: "x1", FlagID: "f-checkout", Name: "checkout"},
	}}
}

func (s *fakeEventStore) InsertExposure(_ context.Context, e domain.Exposure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.exposures = append(s.exposures, e)
	return nil
}

func (s *fakeEventStore) InsertConversion(_ context.Context, c domain.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.conversions = append(s.conversions, c)
	return nil
}

func (s *fakeEventStore) GetExperiment(_ context.Context, id string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, apperrors.ErrExperimentNotFound(id)
	}
	return exp, nil
}

func (s *fakeEventStore) GetExposure(_ context.Context, id string) (domain.Exposure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.exposures {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Exposure{}, apperrors.ErrExposureNotFound(id)
}

func (s *fakeEventStore) exposureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exposures)
}

func newTestPools(t *testing.T) *worker.Pools {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 4, EventsPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)
	return pools
}

func newTestCache(decisionTTL time.Duration) *cache.FlagCache {
	return cache.NewFlagCache(cache.NewMemoryStore(), cache.FlagCacheOptions{FlagTTL: time.Minute, DecisionTTL: decisionTTL})
}

func booleanFlag(id, key string, enabled bool) *domain.FlagSnapshot {
	return &domain.FlagSnapshot{
		FeatureFlag: domain.FeatureFlag{ID: id, Key: key, Name: key, Type: domain.FlagTypeBoolean, Enabled: enabled},
		Variants:    []domain.FlagVariant{},
		Targets:     []domain.FlagTarget{},
	}
}

// subjectInBucket finds a subject id that hashes to bucket for flagKey.
func subjectInBucket(t *testing.T, flagKey string, bucket int) string {
	t.Helper()
	for i := 0; i < 100000; i++ {
		id := fmt.Sprintf("user-%d", i)
		if hashing.Bucket(id, flagKey) == bucket {
			return id
		}
	}
	t.Fatalf("no subject found for bucket %d", bucket)
	return ""
}

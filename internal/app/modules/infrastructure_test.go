package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/config"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestNewMemoryStore_JanitorOwnedByPools(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{GeneralPoolSize: 2, EventsPoolSize: 1})
	require.NoError(t, err)

	store := newMemoryStore(config.CacheConfig{
		FlagTTL:         20 * time.Millisecond,
		JanitorInterval: 5 * time.Millisecond,
	}, pools)

	require.Eventually(t, func() bool {
		return pools.Metrics()[worker.PoolGeneral]["running"] == 1
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, store.HSet(ctx, "flags:all", "checkout", []byte("A")))
	_, ok, err := store.HGet(ctx, "flags:all", "checkout")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, _ := store.HGet(ctx, "flags:all", "checkout")
		return !ok
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pools.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pools did not shut down; janitor still running")
	}
}

package modules

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/api/handlers"
	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/repository"
	"rollout.io/rollout/internal/service"
)

// FlagsModule owns flag resolution, decisions and event recording.
type FlagsModule struct {
	infra    *Infrastructure
	cache    *cache.FlagCache
	engine   *service.Engine
	recorder *service.Recorder
	flags    *service.FlagService
}

// NewFlagsModule wires the flag repository, the flag cache and the services
// built on them.
func NewFlagsModule(infra *Infrastructure) *FlagsModule {
	cfg := infra.Config
	flagRepo := repository.NewFlagRepository(infra.Pool)
	eventRepo := repository.NewEventRepository(infra.Pool)

	flagCache := cache.NewFlagCache(infra.CacheStore, cache.FlagCacheOptions{
		FlagTTL:     cfg.Cache.FlagTTL,
		DecisionTTL: cfg.Cache.DecisionTTL,
	})
	resolver := service.NewFlagResolver(flagCache, flagRepo)
	recorder := service.NewRecorder(resolver, eventRepo, infra.Pools.Events, cfg.Events.MaxBatchItems)

	return &FlagsModule{
		infra:    infra,
		cache:    flagCache,
		engine:   service.NewEngine(resolver, flagCache, recorder, infra.Pools),
		recorder: recorder,
		flags:    service.NewFlagService(flagRepo, flagCache, infra.Dispatcher),
	}
}

func (m *FlagsModule) Name() string { return "flags" }

func (m *FlagsModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Decider = m.engine
	deps.Recorder = m.recorder
	deps.Flags = m.flags
	deps.Cache = m.infra.CacheStore
}

func (m *FlagsModule) RegisterWorkers(*river.Workers) {}

// Start warms the flag cache when configured. A failed warm-up is logged and
// flags load lazily instead.
func (m *FlagsModule) Start(ctx context.Context) error {
	if !m.infra.Config.Cache.WarmUpOnStart {
		return nil
	}
	n, err := m.flags.WarmUp(ctx)
	if err != nil {
		logger.Warn("flag cache warm-up failed", zap.Error(err))
		return nil
	}
	logger.Info("flag cache warmed on start", zap.Int("flags", n))
	return nil
}

func (m *FlagsModule) Shutdown(context.Context) error { return nil }

var _ Starter = (*FlagsModule)(nil)

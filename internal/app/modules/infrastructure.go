package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/config"
	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/infrastructure"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/worker"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Redis       *redis.Client
	CacheStore  cache.Store
	Dispatcher  *domain.EventDispatcher
}

// NewInfrastructure connects the database, applies migrations when enabled,
// starts the worker pools and selects the cache store.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		EventsPoolSize:  cfg.Worker.EventsPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	infra := &Infrastructure{
		Config:     cfg,
		DB:         db,
		Pools:      pools,
		Pool:       db.Pool,
		Dispatcher: domain.NewEventDispatcher(),
	}

	if cfg.Redis.Enabled() {
		client, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		infra.Redis = client
		infra.CacheStore = cache.NewRedisStore(client)
	} else {
		infra.CacheStore = newMemoryStore(cfg.Cache, pools)
		logger.Info("Using in-process cache store")
	}

	return infra, nil
}

// newMemoryStore builds the in-process store. Index entries share the flag TTL
// so replicas converge after an invalidation elsewhere. The janitor runs on
// the general pool until the pools shut down.
func newMemoryStore(cfg config.CacheConfig, pools *worker.Pools) *cache.MemoryStore {
	store := cache.NewMemoryStore(cache.WithHashTTL(cfg.FlagTTL))
	err := pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		store.RunJanitor(ctx, cfg.JanitorInterval)
	})
	if err != nil {
		logger.Warn("in-process cache janitor not started", zap.Error(err))
	}
	return store
}

// InitRiver initializes River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// Package app is the composition root. Bootstrap only wires modules together;
// behavior lives in the modules and the packages they build on.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"rollout.io/rollout/internal/api/handlers"
	"rollout.io/rollout/internal/app/modules"
	"rollout.io/rollout/internal/config"
	"rollout.io/rollout/internal/infrastructure"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
	"rollout.io/rollout/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	infra *modules.Infrastructure
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	flagsModule := modules.NewFlagsModule(infra)
	aggregationModule := modules.NewAggregationModule(infra)
	allModules := []modules.Module{flagsModule, aggregationModule}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}
	if err := aggregationModule.BindRiver(); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init aggregation scheduler: %w", err)
	}

	if err := metrics.RegisterPoolGauges(prometheus.DefaultRegisterer, infra.Pools.Metrics); err != nil {
		// Fails when Bootstrap already ran in this process.
		logger.Warn("worker pool gauges not registered", zap.Error(err))
	}

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		infra:   infra,
	}, nil
}

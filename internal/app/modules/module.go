// Package modules groups the composition root into domain modules. Each
// module builds its own services from the shared Infrastructure and hands
// them to the HTTP server and the River worker registry.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"rollout.io/rollout/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// Starter is implemented by modules with work to do once River is running.
type Starter interface {
	Start(context.Context) error
}

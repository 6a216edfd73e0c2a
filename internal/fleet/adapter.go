package fleet

import (
	"context"

	"fleetd/pkg/types"
)

// ServiceAdapter abstracts how one backing AI tool is launched, terminated
// and probed. The orchestrator has no knowledge of how any individual tool
// actually starts; concrete implementations are selected per service id.
type ServiceAdapter interface {
	// Start launches the backing process and returns its handle. It must
	// return once the process is spawned; readiness is established by
	// health probes, not by Start.
	Start(ctx context.Context, spec types.ServiceSpec) (Handle, error)
	// Stop terminates the process behind h and returns once it has exited.
	Stop(ctx context.Context, h Handle) error
	// HealthCheck probes the service endpoint and returns the HTTP status
	// code observed. Transport failures are returned as errors.
	HealthCheck(ctx context.Context, spec types.ServiceSpec) (int, error)
}

// AdapterRegistry selects a ServiceAdapter per service id with a shared
// fallback, the capability-interface pattern: one concrete adapter per
// backing tool, never runtime type inspection.
type AdapterRegistry struct {
	fallback ServiceAdapter
	byID     map[string]ServiceAdapter
}

// NewAdapterRegistry constructs a registry with the given fallback adapter.
func NewAdapterRegistry(fallback ServiceAdapter) *AdapterRegistry {
	return &AdapterRegistry{fallback: fallback, byID: make(map[string]ServiceAdapter)}
}

// Register binds a dedicated adapter to one service id.
func (r *AdapterRegistry) Register(id string, a ServiceAdapter) {
	r.byID[id] = a
}

// For returns the adapter serving the given service id.
func (r *AdapterRegistry) For(id string) ServiceAdapter {
	if a, ok := r.byID[id]; ok {
		return a
	}
	return r.fallback
}

package fleet

import (
	"time"

	"fleetd/pkg/types"
)

// snapshotOf builds a read-only projection of one service.
func (o *Orchestrator) snapshotOf(svc *service) types.ServiceStatusInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	info := types.ServiceStatusInfo{
		ID:             svc.spec.ID,
		Name:           svc.spec.Name,
		Status:         string(svc.status),
		Healthy:        svc.status == StatusRunning && svc.healthFails == 0,
		PID:            svc.handle.PID,
		Endpoint:       svc.handle.Endpoint,
		External:       svc.handle.External,
		HealthFailures: svc.healthFails,
		LastError:      svc.lastError,
		GPUIntensive:   svc.spec.GPUIntensive,
		EmbeddingHost:  svc.spec.EmbeddingHost,
	}
	if !svc.lastActivity.IsZero() {
		info.LastActivity = svc.lastActivity.Unix()
	}
	return info
}

// StatusOf returns the projection for one service id.
func (o *Orchestrator) StatusOf(id string) (types.ServiceStatusInfo, error) {
	svc, err := o.getService(id)
	if err != nil {
		return types.ServiceStatusInfo{}, err
	}
	return o.snapshotOf(svc), nil
}

// FleetStatus builds the full getServices projection. GPU telemetry is
// attached by the API layer from the live source; it is recomputed every
// reporting cycle rather than tracked incrementally.
func (o *Orchestrator) FleetStatus() types.FleetStatusResponse {
	resp := types.FleetStatusResponse{
		Services:        make(map[string]types.ServiceStatusInfo, len(o.cfg.Services)),
		GPULimit:        o.cfg.GPULimit,
		UptimeSeconds:   int64(time.Since(o.startTime).Seconds()),
		StartsTotal:     o.startsTotal.Load(),
		StopsTotal:      o.stopsTotal.Load(),
		IdleStopsTotal:  o.idleStopsTotal.Load(),
		RejectionsTotal: o.rejectionsTotal.Load(),
	}
	for _, spec := range o.cfg.Services {
		svc, err := o.getService(spec.ID)
		if err != nil {
			continue
		}
		resp.Services[spec.ID] = o.snapshotOf(svc)
	}
	o.mu.RLock()
	resp.GPUActive = o.gpuActiveLocked()
	o.mu.RUnlock()
	return resp
}

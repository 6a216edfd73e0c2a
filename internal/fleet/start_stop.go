package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleetd/pkg/types"
)

// Start admits and launches a service. Idempotent: a service already
// starting or running is returned as-is with no side effects. GPU
// admission is checked before any state is mutated; a rejected start
// leaves the service untouched.
func (o *Orchestrator) Start(ctx context.Context, id string) (types.ServiceStatusInfo, error) {
	svc, err := o.getService(id)
	if err != nil {
		return types.ServiceStatusInfo{}, err
	}
	if err := o.acquireOp(ctx, svc); err != nil {
		return o.snapshotOf(svc), err
	}
	defer o.releaseOp(svc)

	o.mu.Lock()
	switch svc.status {
	case StatusStarting, StatusRunning:
		o.mu.Unlock()
		return o.snapshotOf(svc), nil
	case StatusStopping:
		o.mu.Unlock()
		return o.snapshotOf(svc), classifyErr("start "+id, errors.New("stop in progress"))
	}
	// Admission and the move to starting happen atomically so two
	// concurrent starts cannot both pass the gate.
	if svc.spec.GPUIntensive && o.gpuActiveLocked() >= o.cfg.GPULimit {
		limit := o.cfg.GPULimit
		o.mu.Unlock()
		o.rejectionsTotal.Add(1)
		admissionRejectionsTotal.WithLabelValues(id).Inc()
		return o.snapshotOf(svc), serviceBusyError{id: id, limit: limit}
	}
	prev := svc.status
	// A restart from error may leave a live process behind the stale
	// handle; it has to go before a second one is launched.
	var stale Handle
	if prev == StatusError && !svc.handle.External && svc.handle.PID != 0 {
		stale = svc.handle
		svc.handle = Handle{}
	}
	svc.status = StatusStarting
	svc.startedAt = time.Now()
	svc.lastError = ""
	svc.healthFails = 0
	svc.gen++
	o.mu.Unlock()
	transitionsTotal.WithLabelValues(id, string(StatusStarting)).Inc()
	o.pub.Publish(Event{
		Type: EventServiceState, Subject: id,
		Previous: string(prev), New: string(StatusStarting), Timestamp: time.Now(),
	})
	o.log.Info().Str("service", id).Str("from", string(prev)).Msg("starting service")

	if stale.PID != 0 {
		sctx, scancel := context.WithTimeout(ctx, o.cfg.StopTimeout)
		if err := o.adapters.For(id).Stop(sctx, stale); err != nil {
			o.log.Warn().Err(err).Str("service", id).Int("pid", stale.PID).
				Msg("failed to stop stale process before restart")
		}
		scancel()
	}

	began := time.Now()
	cctx, cancel := context.WithTimeout(ctx, o.cfg.StartTimeout)
	defer cancel()
	h, err := o.adapters.For(id).Start(cctx, svc.spec)
	if err != nil {
		werr := wrapOp(id, "start", began, err)
		o.transition(svc, StatusError, werr.Error())
		return o.snapshotOf(svc), classifyErr("start "+id, werr)
	}

	o.mu.Lock()
	svc.handle = h
	svc.lastActivity = time.Now()
	o.mu.Unlock()
	o.startsTotal.Add(1)
	// The service stays in starting until a health probe confirms it.
	return o.snapshotOf(svc), nil
}

// Stop terminates a service. Idempotent: stopped and stopping are no-ops.
// A service in error is stopped too, killing any process still alive
// behind its handle. A stop that the adapter never confirms becomes an
// error with a captured message rather than hanging in stopping.
func (o *Orchestrator) Stop(ctx context.Context, id string) (types.ServiceStatusInfo, error) {
	svc, err := o.getService(id)
	if err != nil {
		return types.ServiceStatusInfo{}, err
	}
	// Fast idempotent path: a concurrent Stop holds the op slot for its
	// whole graceful wait, so check before queueing behind it.
	o.mu.RLock()
	st := svc.status
	o.mu.RUnlock()
	if st == StatusStopped || st == StatusStopping {
		return o.snapshotOf(svc), nil
	}
	if err := o.acquireOp(ctx, svc); err != nil {
		return o.snapshotOf(svc), err
	}
	defer o.releaseOp(svc)

	o.mu.RLock()
	st = svc.status
	h := svc.handle
	o.mu.RUnlock()
	switch st {
	case StatusStopped, StatusStopping:
		return o.snapshotOf(svc), nil
	case StatusError:
		// A service that failed health checks may still have a live
		// process behind its handle. Only a handle-less (or external)
		// error settles to stopped without touching the adapter.
		if h.External || h.PID == 0 {
			o.mu.Lock()
			svc.handle = Handle{}
			svc.healthFails = 0
			o.mu.Unlock()
			o.transition(svc, StatusStopped, "")
			return o.snapshotOf(svc), nil
		}
	}

	o.transition(svc, StatusStopping, "")
	began := time.Now()
	cctx, cancel := context.WithTimeout(ctx, o.cfg.StopTimeout)
	defer cancel()
	if err := o.adapters.For(id).Stop(cctx, h); err != nil {
		werr := wrapOp(id, "stop", began, err)
		o.transition(svc, StatusError, werr.Error())
		return o.snapshotOf(svc), werr
	}

	o.mu.Lock()
	svc.handle = Handle{}
	svc.healthFails = 0
	o.mu.Unlock()
	o.transition(svc, StatusStopped, "")
	o.stopsTotal.Add(1)
	return o.snapshotOf(svc), nil
}

// StopUnused stops every running gpu_intensive service that is neither in
// keepRunning nor an embedding host. Stops run concurrently with
// best-effort semantics: a per-service failure is logged and does not
// abort the batch.
func (o *Orchestrator) StopUnused(ctx context.Context, keepRunning []string) types.StopUnusedSummary {
	keep := make(map[string]bool, len(keepRunning))
	for _, id := range keepRunning {
		keep[id] = true
	}

	o.mu.RLock()
	var candidates, kept []string
	for id, svc := range o.services {
		if svc.status != StatusRunning || !svc.spec.GPUIntensive {
			continue
		}
		if keep[id] || svc.spec.EmbeddingHost {
			kept = append(kept, id)
			continue
		}
		candidates = append(candidates, id)
	}
	o.mu.RUnlock()

	var (
		mu      sync.Mutex
		summary = types.StopUnusedSummary{Kept: kept}
		wg      sync.WaitGroup
	)
	for _, id := range candidates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := o.Stop(ctx, id); err != nil {
				o.log.Warn().Err(err).Str("service", id).Msg("stop-unused: stop failed")
				mu.Lock()
				summary.Failed = append(summary.Failed, id)
				mu.Unlock()
				return
			}
			mu.Lock()
			summary.Stopped = append(summary.Stopped, id)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	if len(summary.Stopped) > 0 || len(summary.Failed) > 0 {
		o.log.Info().
			Strs("stopped", summary.Stopped).
			Strs("failed", summary.Failed).
			Msg("stop-unused complete")
	}
	return summary
}

// errorMessageOf returns the captured error for id, if any.
func (o *Orchestrator) errorMessageOf(svc *service) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return svc.lastError
}

package fleet

import (
	"context"
	"sync"
	"time"
)

// Reconcile probes every descriptor's health endpoint before the in-memory
// defaults are trusted. Externally-managed processes that respond are
// adopted as running; everything else keeps the stopped default. Probes
// run concurrently, each with the health-check timeout.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		adopted []string
	)
	for _, spec := range o.cfg.Services {
		svc, err := o.getService(spec.ID)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(svc *service) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
			defer cancel()
			code, err := o.adapters.For(svc.spec.ID).HealthCheck(cctx, svc.spec)
			if err != nil || code < 200 || code >= 400 {
				return
			}
			if err := o.acquireOp(ctx, svc); err != nil {
				return
			}
			defer o.releaseOp(svc)
			o.mu.Lock()
			if svc.status != StatusStopped {
				o.mu.Unlock()
				return
			}
			svc.handle = Handle{Endpoint: endpointFromHealthURL(svc.spec.HealthURL), External: true}
			svc.lastActivity = time.Now()
			o.mu.Unlock()
			o.transition(svc, StatusRunning, "")
			o.pub.Publish(Event{Type: EventReconciled, Subject: svc.spec.ID, Timestamp: time.Now()})
			mu.Lock()
			adopted = append(adopted, svc.spec.ID)
			mu.Unlock()
		}(svc)
	}
	wg.Wait()
	o.log.Info().
		Int("services", len(o.cfg.Services)).
		Strs("already_running", adopted).
		Msg("reconciliation pass complete")
}

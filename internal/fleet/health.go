package fleet

import (
	"context"
	"fmt"
	"time"
)

// healthLoop runs one independent timer per service. Probes are skipped
// while the service is stopped, stopping or in error; an error state
// therefore suspends polling until an explicit Start.
func (o *Orchestrator) healthLoop(ctx context.Context, svc *service) {
	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkService(ctx, svc)
		}
	}
}

// checkService issues one bounded-timeout probe. Total probe concurrency
// across services is bounded by healthSem; the per-call timeout keeps a
// hanging endpoint from delaying anyone else's tick.
func (o *Orchestrator) checkService(ctx context.Context, svc *service) {
	o.mu.RLock()
	st := svc.status
	o.mu.RUnlock()
	if st != StatusStarting && st != StatusRunning {
		return
	}

	select {
	case o.healthSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-o.healthSem }()

	cctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
	defer cancel()
	code, err := o.adapters.For(svc.spec.ID).HealthCheck(cctx, svc.spec)
	healthy := err == nil && code >= 200 && code < 400
	o.onHealthResult(svc, healthy, code, err)
}

// onHealthResult applies one probe outcome. It competes for the service's
// transition slot with user commands; if one is in flight the observation
// is dropped, the next tick will see the settled state.
func (o *Orchestrator) onHealthResult(svc *service, healthy bool, code int, probeErr error) {
	select {
	case svc.opCh <- struct{}{}:
	default:
		return
	}
	defer o.releaseOp(svc)

	o.mu.Lock()
	st := svc.status
	if st != StatusStarting && st != StatusRunning {
		o.mu.Unlock()
		return
	}

	if healthy {
		svc.healthFails = 0
		o.mu.Unlock()
		if st == StatusStarting {
			o.transition(svc, StatusRunning, "")
		}
		return
	}

	healthFailuresTotal.WithLabelValues(svc.spec.ID).Inc()
	switch st {
	case StatusRunning:
		svc.healthFails++
		fails := svc.healthFails
		o.mu.Unlock()
		if fails >= o.cfg.FailureThreshold {
			msg := fmt.Sprintf("%d consecutive health check failures (last: %s)",
				fails, probeResult(code, probeErr))
			o.transition(svc, StatusError, msg)
		}
	case StatusStarting:
		overdue := time.Since(svc.startedAt) > o.cfg.StartTimeout
		o.mu.Unlock()
		if overdue {
			msg := fmt.Sprintf("start timeout after %s (last probe: %s)",
				o.cfg.StartTimeout, probeResult(code, probeErr))
			o.transition(svc, StatusError, msg)
		}
	default:
		o.mu.Unlock()
	}
}

func probeResult(code int, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("http %d", code)
}

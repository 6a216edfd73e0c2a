package fleet

import (
	"context"
	"sync"
	"time"
)

// sweepLoop runs the idle-timeout pass on one global cadence.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SweepIdle(ctx)
		}
	}
}

// SweepIdle stops every running gpu_intensive service whose last activity
// is older than the idle timeout. Embedding hosts and externally-managed
// processes are exempt. Returns the ids it stopped.
func (o *Orchestrator) SweepIdle(ctx context.Context) []string {
	cutoff := time.Now().Add(-o.cfg.IdleTimeout)

	o.mu.RLock()
	var candidates []string
	for id, svc := range o.services {
		if svc.status != StatusRunning || !svc.spec.GPUIntensive {
			continue
		}
		if svc.spec.EmbeddingHost || svc.handle.External {
			continue
		}
		if svc.lastActivity.IsZero() || svc.lastActivity.After(cutoff) {
			continue
		}
		candidates = append(candidates, id)
	}
	o.mu.RUnlock()

	var (
		mu      sync.Mutex
		stopped []string
		wg      sync.WaitGroup
	)
	for _, id := range candidates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := o.Stop(ctx, id); err != nil {
				o.log.Warn().Err(err).Str("service", id).Msg("idle sweep: stop failed")
				return
			}
			o.idleStopsTotal.Add(1)
			idleStopsTotal.WithLabelValues(id).Inc()
			o.pub.Publish(Event{Type: EventIdleStop, Subject: id, Timestamp: time.Now()})
			o.log.Info().Str("service", id).Dur("idle_timeout", o.cfg.IdleTimeout).Msg("stopped idle service")
			mu.Lock()
			stopped = append(stopped, id)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return stopped
}

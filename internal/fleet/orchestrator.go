package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fleetd/pkg/types"
)

// Orchestrator owns the service registry and is the single writer of all
// ServiceState. Commands and health results funnel through per-service
// transition slots; reads are lock-free projections.
type Orchestrator struct {
	cfg      Config
	adapters *AdapterRegistry
	pub      EventPublisher
	log      zerolog.Logger

	mu       sync.RWMutex
	services map[string]*service

	healthSem chan struct{}
	startTime time.Time

	startsTotal     atomic.Uint64
	stopsTotal      atomic.Uint64
	idleStopsTotal  atomic.Uint64
	rejectionsTotal atomic.Uint64
}

// Option customizes Orchestrator construction.
type Option func(*Orchestrator)

// WithPublisher installs an event publisher (default drops events).
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pub = p
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New constructs an Orchestrator for the services in cfg. ServiceState is
// created lazily on first reference and lives for the process lifetime.
func New(cfg Config, adapters *AdapterRegistry, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:       cfg,
		adapters:  adapters,
		pub:       noopPublisher{},
		log:       zerolog.Nop(),
		services:  make(map[string]*service),
		healthSem: make(chan struct{}, cfg.HealthParallel),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// getService returns the state for id, creating it on first reference.
func (o *Orchestrator) getService(id string) (*service, error) {
	o.mu.RLock()
	svc := o.services[id]
	o.mu.RUnlock()
	if svc != nil {
		return svc, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if svc = o.services[id]; svc != nil {
		return svc, nil
	}
	for _, spec := range o.cfg.Services {
		if spec.ID == id {
			svc = &service{
				spec:   spec,
				opCh:   make(chan struct{}, 1),
				status: StatusStopped,
			}
			o.services[id] = svc
			return svc, nil
		}
	}
	return nil, ErrServiceNotFound(id)
}

// acquireOp reserves the single transition slot for svc.
func (o *Orchestrator) acquireOp(ctx context.Context, svc *service) error {
	select {
	case svc.opCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) releaseOp(svc *service) { <-svc.opCh }

// transition moves svc to the target status, records the error message
// when provided, bumps metrics and publishes the state event.
func (o *Orchestrator) transition(svc *service, to Status, errMsg string) {
	o.mu.Lock()
	prev := svc.status
	svc.status = to
	if errMsg != "" {
		svc.lastError = errMsg
	}
	o.mu.Unlock()
	if prev == to {
		return
	}
	transitionsTotal.WithLabelValues(svc.spec.ID, string(to)).Inc()
	o.log.Info().
		Str("service", svc.spec.ID).
		Str("from", string(prev)).
		Str("to", string(to)).
		Msg("service transition")
	o.pub.Publish(Event{
		Type:      EventServiceState,
		Subject:   svc.spec.ID,
		Previous:  string(prev),
		New:       string(to),
		Timestamp: time.Now(),
	})
}

// gpuActiveLocked counts gpu_intensive services occupying a GPU slot.
// Starting counts too, otherwise two concurrent starts could both pass
// the gate before either reaches running. Caller holds o.mu.
func (o *Orchestrator) gpuActiveLocked() int {
	n := 0
	for _, svc := range o.services {
		if !svc.spec.GPUIntensive {
			continue
		}
		switch svc.status {
		case StatusStarting, StatusRunning:
			n++
		}
	}
	return n
}

// Touch refreshes last_activity for id. Request routers call this whenever
// they forward work to the service; the orchestrator never infers it.
func (o *Orchestrator) Touch(id string) error {
	svc, err := o.getService(id)
	if err != nil {
		return err
	}
	o.mu.Lock()
	svc.lastActivity = time.Now()
	o.mu.Unlock()
	return nil
}

// Run launches the health-check loops and the idle sweep. The goroutines
// exit when ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	for _, spec := range o.cfg.Services {
		svc, err := o.getService(spec.ID)
		if err != nil {
			continue
		}
		go o.healthLoop(ctx, svc)
	}
	go o.sweepLoop(ctx)
}

// Specs returns the configured descriptors in file order.
func (o *Orchestrator) Specs() []types.ServiceSpec {
	out := make([]types.ServiceSpec, len(o.cfg.Services))
	copy(out, o.cfg.Services)
	return out
}

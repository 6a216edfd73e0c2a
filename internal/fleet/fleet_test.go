package fleet

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleetd/pkg/types"
)

// fakeAdapter is a controllable ServiceAdapter for tests.
type fakeAdapter struct {
	mu           sync.Mutex
	startErr     error
	startDelay   time.Duration
	stopErr      error
	healthCode   int
	healthErr    error
	starts       int
	stops        int
	healthChecks int
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{healthCode: 200} }

func (a *fakeAdapter) set(fn func(*fakeAdapter)) {
	a.mu.Lock()
	fn(a)
	a.mu.Unlock()
}

func (a *fakeAdapter) counts() (starts, stops, checks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts, a.stops, a.healthChecks
}

func (a *fakeAdapter) Start(ctx context.Context, spec types.ServiceSpec) (Handle, error) {
	a.mu.Lock()
	err := a.startErr
	delay := a.startDelay
	a.starts++
	a.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		}
	}
	if err != nil {
		return Handle{}, err
	}
	return Handle{PID: 4242, Endpoint: "http://127.0.0.1:9999"}, nil
}

func (a *fakeAdapter) Stop(ctx context.Context, h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return a.stopErr
}

func (a *fakeAdapter) HealthCheck(ctx context.Context, spec types.ServiceSpec) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthChecks++
	return a.healthCode, a.healthErr
}

func testSpecs() []types.ServiceSpec {
	return []types.ServiceSpec{
		{ID: "vision", Name: "Vision", HealthURL: "http://127.0.0.1:8188/health", GPUIntensive: true},
		{ID: "render", Name: "Render", HealthURL: "http://127.0.0.1:8288/health", GPUIntensive: true},
		{ID: "embed", Name: "Embeddings", HealthURL: "http://127.0.0.1:11434/health", GPUIntensive: true, EmbeddingHost: true},
		{ID: "web", Name: "Web UI", HealthURL: "http://127.0.0.1:3000/health"},
	}
}

func newTestFleet(t *testing.T, opts ...Option) (*Orchestrator, *fakeAdapter) {
	t.Helper()
	adapter := newFakeAdapter()
	cfg := Config{
		Services:         testSpecs(),
		GPULimit:         1,
		HealthInterval:   10 * time.Millisecond,
		HealthTimeout:    time.Second,
		FailureThreshold: 3,
		StartTimeout:     2 * time.Second,
		StopTimeout:      2 * time.Second,
		PollInterval:     5 * time.Millisecond,
	}
	return New(cfg, NewAdapterRegistry(adapter), opts...), adapter
}

// markRunning drives id through start and a confirming health probe.
func markRunning(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	if _, err := o.Start(context.Background(), id); err != nil {
		t.Fatalf("start %s: %v", id, err)
	}
	svc, err := o.getService(id)
	if err != nil {
		t.Fatalf("getService %s: %v", id, err)
	}
	o.onHealthResult(svc, true, 200, nil)
	if st := o.statusOf(svc); st != StatusRunning {
		t.Fatalf("expected %s running after healthy probe, got %s", id, st)
	}
}

// waitForStatus polls until id reaches want or the deadline passes.
func waitForStatus(t *testing.T, o *Orchestrator, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		info, err := o.StatusOf(id)
		if err != nil {
			t.Fatalf("status of %s: %v", id, err)
		}
		if info.Status == string(want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, _ := o.StatusOf(id)
	t.Fatalf("timeout waiting for %s to reach %s (got %s)", id, want, info.Status)
}

package fleet

import (
	"context"
	"testing"
	"time"
)

// backdate rewrites last activity so the idle cutoff has passed.
func backdate(o *Orchestrator, id string, age time.Duration) {
	svc, _ := o.getService(id)
	o.mu.Lock()
	svc.lastActivity = time.Now().Add(-age)
	o.mu.Unlock()
}

func TestSweepIdleStopsStaleService(t *testing.T) {
	pub := NewMemoryPublisher()
	o, _ := newTestFleet(t, WithPublisher(pub))
	markRunning(t, o, "vision")
	backdate(o, "vision", o.cfg.IdleTimeout+time.Minute)

	stopped := o.SweepIdle(context.Background())
	if len(stopped) != 1 || stopped[0] != "vision" {
		t.Fatalf("expected vision stopped, got %v", stopped)
	}
	info, _ := o.StatusOf("vision")
	if info.Status != string(StatusStopped) {
		t.Fatalf("expected stopped, got %s", info.Status)
	}

	found := false
	for _, e := range pub.Events() {
		if e.Type == EventIdleStop && e.Subject == "vision" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an idle-stop event")
	}
}

func TestSweepIdleKeepsFreshService(t *testing.T) {
	o, _ := newTestFleet(t)
	markRunning(t, o, "vision")

	if stopped := o.SweepIdle(context.Background()); len(stopped) != 0 {
		t.Fatalf("expected no stops for fresh activity, got %v", stopped)
	}
}

func TestSweepIdleExemptsEmbeddingHost(t *testing.T) {
	o, _ := newTestFleet(t)
	o.cfg.GPULimit = 2
	markRunning(t, o, "embed")
	backdate(o, "embed", o.cfg.IdleTimeout+time.Hour)

	if stopped := o.SweepIdle(context.Background()); len(stopped) != 0 {
		t.Fatalf("embedding hosts must survive the sweep, got %v", stopped)
	}
}

func TestSweepIdleExemptsExternalProcess(t *testing.T) {
	o, _ := newTestFleet(t)
	svc, _ := o.getService("vision")
	o.mu.Lock()
	svc.status = StatusRunning
	svc.handle = Handle{Endpoint: "http://127.0.0.1:8188", External: true}
	svc.lastActivity = time.Now().Add(-o.cfg.IdleTimeout - time.Hour)
	o.mu.Unlock()

	if stopped := o.SweepIdle(context.Background()); len(stopped) != 0 {
		t.Fatalf("externally-managed processes must survive the sweep, got %v", stopped)
	}
}

func TestSweepIdleSkipsNeverActive(t *testing.T) {
	o, _ := newTestFleet(t)
	svc, _ := o.getService("vision")
	o.mu.Lock()
	svc.status = StatusRunning
	svc.lastActivity = time.Time{}
	o.mu.Unlock()

	if stopped := o.SweepIdle(context.Background()); len(stopped) != 0 {
		t.Fatalf("zero activity must not count as idle, got %v", stopped)
	}
}

func TestSweepIdleIgnoresNonGPU(t *testing.T) {
	o, _ := newTestFleet(t)
	markRunning(t, o, "web")
	backdate(o, "web", o.cfg.IdleTimeout+time.Hour)

	if stopped := o.SweepIdle(context.Background()); len(stopped) != 0 {
		t.Fatalf("non-gpu services are outside the sweep, got %v", stopped)
	}
}

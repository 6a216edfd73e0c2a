package fleet

import (
	"context"
	"errors"
	"testing"
)

func TestReconcileAdoptsResponsiveProcess(t *testing.T) {
	pub := NewMemoryPublisher()
	o, fallback := newTestFleet(t, WithPublisher(pub))
	// Only the web endpoint answers; everything else is unreachable.
	fallback.set(func(a *fakeAdapter) { a.healthErr = errors.New("connection refused") })
	healthy := newFakeAdapter()
	o.adapters.Register("web", healthy)

	o.Reconcile(context.Background())

	info, _ := o.StatusOf("web")
	if info.Status != string(StatusRunning) {
		t.Fatalf("expected web adopted as running, got %s", info.Status)
	}
	if !info.External {
		t.Fatal("adopted process must be marked external")
	}
	if info.Endpoint != "http://127.0.0.1:3000" {
		t.Fatalf("expected endpoint derived from health url, got %q", info.Endpoint)
	}
	for _, id := range []string{"vision", "render", "embed"} {
		if got, _ := o.StatusOf(id); got.Status != string(StatusStopped) {
			t.Fatalf("expected %s stopped, got %s", id, got.Status)
		}
	}

	found := false
	for _, e := range pub.Events() {
		if e.Type == EventReconciled && e.Subject == "web" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a reconciled event for web")
	}
}

func TestReconcileLeavesManagedServiceAlone(t *testing.T) {
	o, _ := newTestFleet(t)
	markRunning(t, o, "vision")

	o.Reconcile(context.Background())

	info, _ := o.StatusOf("vision")
	if info.Status != string(StatusRunning) || info.External {
		t.Fatalf("managed service must keep its own handle, got %+v", info)
	}
	if info.PID == 0 {
		t.Fatal("expected the managed pid preserved")
	}
}

func TestReconcileRejectsErrorResponses(t *testing.T) {
	o, fallback := newTestFleet(t)
	fallback.set(func(a *fakeAdapter) { a.healthCode = 503 })

	o.Reconcile(context.Background())

	for _, spec := range testSpecs() {
		if info, _ := o.StatusOf(spec.ID); info.Status != string(StatusStopped) {
			t.Fatalf("expected %s stopped on 5xx probe, got %s", spec.ID, info.Status)
		}
	}
}

package fleet

import "time"

// Event types emitted by the orchestrator and the VRAM manager.
const (
	EventServiceState = "service_state"
	EventReconciled   = "service_reconciled"
	EventIdleStop     = "idle_stop"
	EventModelUnload  = "model_unload"
)

// Event records one observable mutation: a service status transition or a
// model record change.
type Event struct {
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Previous  string         `json:"previous,omitempty"`
	New       string         `json:"new,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives events from the orchestrator. Implementations
// must be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

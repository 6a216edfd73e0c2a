package fleet

import (
	"time"

	"fleetd/pkg/types"
)

// Status represents the lifecycle state of a managed service.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Handle identifies the live process or endpoint behind a started service.
// External handles describe processes the orchestrator observed at startup
// but did not launch itself.
type Handle struct {
	PID      int
	Endpoint string
	External bool
}

// service pairs an immutable descriptor with its mutable runtime state.
// Field access is guarded by the orchestrator mutex; logical transitions
// are serialized through opCh (size 1: single in-flight transition per id).
type service struct {
	spec types.ServiceSpec

	opCh chan struct{}

	status       Status
	handle       Handle
	healthFails  int
	lastActivity time.Time
	lastError    string
	startedAt    time.Time
	// gen increments on every accepted start so a pending ensure can tell
	// a concurrent stop/restart apart from its own attempt.
	gen uint64
}

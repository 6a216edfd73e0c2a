// Package fleet provides lifecycle, health and GPU admission coordination
// for a fleet of managed AI services on one host. It is structured into
// small files by concern:
//
//   - orchestrator.go: core Orchestrator type, constructor, registry access.
//   - config.go: Config and package defaults.
//   - types.go: internal state types (Status, Handle, service).
//   - adapter.go / adapter_proc.go: ServiceAdapter capability interface,
//     per-id adapter registry and the subprocess-backed implementation.
//   - start_stop.go: Start/Stop transitions, GPU admission, StopUnused.
//   - ensure.go: EnsureRunning/WaitForStatus composite operations.
//   - health.go: per-service health-check loops and failure counting.
//   - idle.go: idle-timeout sweep.
//   - reconcile.go: startup reconciliation against already-running processes.
//   - errors.go: error taxonomy and predicate helpers (IsServiceBusy, ...).
//   - events.go / broadcaster.go: event types, publisher interface, fan-out.
//
// The Orchestrator is the single writer of service state. Transitions for
// one id are serialized through a per-service slot; operations on distinct
// ids proceed fully in parallel. External packages should use public
// methods only; internal types are subject to change.
package fleet

package types

// ServiceStatusInfo summarizes one service for GET /services.
type ServiceStatusInfo struct {
	// Service identifier.
	// example: comfyui
	ID string `json:"id" example:"comfyui"`
	// Display name.
	// example: ComfyUI
	Name string `json:"name" example:"ComfyUI"`
	// Lifecycle state: stopped, starting, running, stopping or error.
	// example: running
	Status string `json:"status" example:"running"`
	// True when the service is running and its last health probe passed.
	// example: true
	Healthy bool `json:"healthy" example:"true"`
	// Process id of the managed process, when launched by the daemon.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Endpoint of the backing process.
	// example: http://127.0.0.1:8188
	Endpoint string `json:"endpoint,omitempty" example:"http://127.0.0.1:8188"`
	// True when the process was discovered by reconciliation rather than
	// launched by the daemon.
	External bool `json:"external,omitempty"`
	// Consecutive failed health probes.
	// example: 0
	HealthFailures int `json:"consecutive_health_failures" example:"0"`
	// Last request routed to this service (unix seconds, 0 = never).
	// example: 1700000000
	LastActivity int64 `json:"last_activity_unix,omitempty" example:"1700000000"`
	// Last captured error message, if any.
	LastError string `json:"last_error,omitempty"`
	// Whether the service counts against the GPU concurrency limit.
	GPUIntensive bool `json:"gpu_intensive"`
	// Whether the service hosts embedding models.
	EmbeddingHost bool `json:"embedding_host,omitempty"`
}

// GPUTelemetry is an informational snapshot from the telemetry source.
// It never gates admission decisions.
type GPUTelemetry struct {
	// example: 24576
	TotalMB int `json:"total_mb" example:"24576"`
	// example: 8192
	UsedMB int `json:"used_mb" example:"8192"`
	// example: 16384
	FreeMB int `json:"free_mb" example:"16384"`
	// GPU utilization percentage.
	// example: 35
	UtilizationPct int `json:"utilization_pct" example:"35"`
}

// FleetStatusResponse is returned by GET /services.
type FleetStatusResponse struct {
	Services map[string]ServiceStatusInfo `json:"services"`
	// Configured gpu_intensive concurrency limit.
	// example: 1
	GPULimit int `json:"gpu_intensive_concurrency_limit" example:"1"`
	// gpu_intensive services currently occupying a slot.
	// example: 1
	GPUActive int `json:"gpu_active" example:"1"`
	// Live telemetry, informational only. Omitted when unavailable.
	GPU *GPUTelemetry `json:"gpu,omitempty"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Counters since startup.
	StartsTotal     uint64 `json:"starts_total"`
	StopsTotal      uint64 `json:"stops_total"`
	IdleStopsTotal  uint64 `json:"idle_stops_total"`
	RejectionsTotal uint64 `json:"admission_rejections_total"`
}

// CommandResult is the structured result for lifecycle commands. Expected
// failure modes carry a stable code (e.g. SERVICE_BUSY); unexpected
// internal failures surface generically.
type CommandResult struct {
	// example: true
	Success bool `json:"success" example:"true"`
	// Stable machine-readable code for expected failures.
	// example: SERVICE_BUSY
	Code string `json:"code,omitempty" example:"SERVICE_BUSY"`
	// Human-readable detail.
	Message string `json:"message,omitempty"`
	// Post-command view of the service, when known.
	State *ServiceStatusInfo `json:"state,omitempty"`
}

// StopUnusedRequest selects which gpu_intensive services to keep running.
type StopUnusedRequest struct {
	KeepRunning []string `json:"keep_running"`
}

// StopUnusedSummary reports the outcome of a best-effort stop batch.
type StopUnusedSummary struct {
	Stopped []string `json:"stopped"`
	Failed  []string `json:"failed,omitempty"`
	Kept    []string `json:"kept,omitempty"`
}

// VRAMManageRequest controls a VRAM eviction pass.
type VRAMManageRequest struct {
	// example: true
	PreserveEmbedding bool `json:"preserve_embedding" example:"true"`
}

// VRAMSummary reports one eviction pass. Every non-preserved model is
// attempted even when individual unloads fail.
type VRAMSummary struct {
	// example: 2
	Attempted int `json:"attempted" example:"2"`
	// example: 1
	Unloaded int `json:"unloaded" example:"1"`
	// example: 1
	Failed    int      `json:"failed" example:"1"`
	Preserved []string `json:"preserved,omitempty"`
	Models    []string `json:"models,omitempty"`
}

// EnsureRequest tunes the EnsureRunning composite operation. Zero values
// select server defaults.
type EnsureRequest struct {
	// example: 2
	MaxRetries int `json:"max_retries,omitempty" example:"2"`
	// example: 60
	StartTimeoutSeconds int `json:"start_timeout_seconds,omitempty" example:"60"`
	// example: 500
	PollIntervalMillis int `json:"poll_interval_ms,omitempty" example:"500"`
	// example: 5
	MaxConsecutiveTransientErrors int `json:"max_consecutive_transient_errors,omitempty" example:"5"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

package types

// ServiceSpec describes one managed AI service as loaded from
// configuration. Specs are immutable after startup.
type ServiceSpec struct {
	// Stable identifier for the service.
	// example: comfyui
	ID string `json:"id" yaml:"id" toml:"id"`
	// Human-friendly display name.
	// example: ComfyUI
	Name string `json:"name" yaml:"name" toml:"name"`
	// Command and arguments used to launch the backing process.
	// example: /opt/comfyui/run.sh
	Command string   `json:"command,omitempty" yaml:"command" toml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args" toml:"args"`
	// Health-check endpoint polled to classify the service.
	// example: http://127.0.0.1:8188/system_stats
	HealthURL string `json:"health_url" yaml:"health_url" toml:"health_url"`
	// Whether the service meaningfully consumes GPU VRAM while running.
	GPUIntensive bool `json:"gpu_intensive" yaml:"gpu_intensive" toml:"gpu_intensive"`
	// Embedding hosts are exempt from the idle sweep and stop-unused
	// batches so retrieval features keep working.
	EmbeddingHost bool `json:"embedding_host,omitempty" yaml:"embedding_host" toml:"embedding_host"`
}

// LoadedModel is a cached observation of one model resident on the model
// host. Records mirror what the host reports and are never authoritative.
type LoadedModel struct {
	Name        string `json:"name"`
	SizeMB      int    `json:"size_mb"`
	IsEmbedding bool   `json:"is_embedding"`
}

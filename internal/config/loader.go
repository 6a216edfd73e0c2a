package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"fleetd/pkg/types"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	Services []types.ServiceSpec `json:"services" yaml:"services" toml:"services"`

	GPUConcurrencyLimit   int `json:"gpu_concurrency_limit" yaml:"gpu_concurrency_limit" toml:"gpu_concurrency_limit"`
	IdleTimeoutSeconds    int `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	SweepIntervalSeconds  int `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds" toml:"sweep_interval_seconds"`
	HealthIntervalSeconds int `json:"health_interval_seconds" yaml:"health_interval_seconds" toml:"health_interval_seconds"`
	HealthTimeoutSeconds  int `json:"health_timeout_seconds" yaml:"health_timeout_seconds" toml:"health_timeout_seconds"`
	FailureThreshold      int `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold"`
	StartTimeoutSeconds   int `json:"start_timeout_seconds" yaml:"start_timeout_seconds" toml:"start_timeout_seconds"`
	StopTimeoutSeconds    int `json:"stop_timeout_seconds" yaml:"stop_timeout_seconds" toml:"stop_timeout_seconds"`

	ModelHostURL            string   `json:"model_host_url" yaml:"model_host_url" toml:"model_host_url"`
	PreserveEmbeddingModels []string `json:"preserve_embedding_models" yaml:"preserve_embedding_models" toml:"preserve_embedding_models"`

	NvidiaSMIPath string `json:"nvidia_smi_path" yaml:"nvidia_smi_path" toml:"nvidia_smi_path"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := expandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, cfg.validate()
}

// expandHome expands a leading '~' to the user's home directory so paths
// like ~/fleet.yaml work from the command line.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		if svc.ID == "" {
			return fmt.Errorf("service with empty id")
		}
		if seen[svc.ID] {
			return fmt.Errorf("duplicate service id: %s", svc.ID)
		}
		seen[svc.ID] = true
		if svc.HealthURL == "" {
			return fmt.Errorf("service %s: health_url is required", svc.ID)
		}
	}
	return nil
}

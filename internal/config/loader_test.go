package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
addr: ":8090"
gpu_concurrency_limit: 1
idle_timeout_seconds: 1800
model_host_url: "http://localhost:11434"
preserve_embedding_models:
  - nomic-embed-text
services:
  - id: comfyui
    name: ComfyUI
    command: /opt/comfyui/run.sh
    health_url: http://127.0.0.1:8188/system_stats
    gpu_intensive: true
  - id: ollama
    name: Ollama
    health_url: http://127.0.0.1:11434/api/tags
    gpu_intensive: true
    embedding_host: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8090" || cfg.GPUConcurrencyLimit != 1 || cfg.IdleTimeoutSeconds != 1800 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(cfg.Services))
	}
	if !cfg.Services[0].GPUIntensive || cfg.Services[0].Command != "/opt/comfyui/run.sh" {
		t.Fatalf("unexpected first service: %+v", cfg.Services[0])
	}
	if !cfg.Services[1].EmbeddingHost {
		t.Fatalf("expected ollama marked as embedding host: %+v", cfg.Services[1])
	}
	if len(cfg.PreserveEmbeddingModels) != 1 || cfg.PreserveEmbeddingModels[0] != "nomic-embed-text" {
		t.Fatalf("unexpected preserve list: %v", cfg.PreserveEmbeddingModels)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "fleet.json", `{
		"addr": ":8090",
		"services": [
			{"id": "comfyui", "health_url": "http://127.0.0.1:8188/health", "gpu_intensive": true}
		]
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].ID != "comfyui" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "fleet.toml", `
addr = ":8090"
log_level = "debug"

[[services]]
id = "comfyui"
name = "ComfyUI"
health_url = "http://127.0.0.1:8188/health"
gpu_intensive = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || len(cfg.Services) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "fleet.ini", "addr=:8090")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unsupported extension")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
services:
  - id: comfyui
    health_url: http://127.0.0.1:8188/health
  - id: comfyui
    health_url: http://127.0.0.1:8288/health
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a duplicate-id error")
	}
}

func TestValidateRequiresHealthURL(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
services:
  - id: comfyui
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a missing health_url error")
	}
}

func TestValidateRequiresID(t *testing.T) {
	path := writeFile(t, "fleet.yaml", `
services:
  - name: Nameless
    health_url: http://127.0.0.1:8188/health
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an empty-id error")
	}
}

// Package vram evicts loaded models from the model host to reclaim GPU
// memory, preserving embedding models that retrieval features depend on.
package vram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fleetd/pkg/types"
)

// HostClient is the Model Host API surface the manager needs: list what
// is resident, load, and unload.
type HostClient interface {
	LoadedModels(ctx context.Context) ([]types.LoadedModel, error)
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string) error
}

// OllamaClient talks to an Ollama-compatible model host. Residency comes
// from /api/ps; unloading uses a generate call with keep_alive 0, which
// is how Ollama is told to release a model immediately.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient constructs a client for baseURL (default
// http://localhost:11434).
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetHTTPClient overrides the underlying HTTP client (tests).
func (c *OllamaClient) SetHTTPClient(client *http.Client) { c.httpClient = client }

type psModel struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Size     int64  `json:"size"`
	SizeVRAM int64  `json:"size_vram"`
}

type psResponse struct {
	Models []psModel `json:"models"`
}

type generateRequest struct {
	Model     string `json:"model"`
	KeepAlive *int   `json:"keep_alive,omitempty"`
}

func (c *OllamaClient) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("model host %s %s: http %d: %s", method, path, resp.StatusCode, string(b))
	}
	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *OllamaClient) LoadedModels(ctx context.Context) ([]types.LoadedModel, error) {
	var ps psResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/ps", nil, &ps); err != nil {
		return nil, err
	}
	out := make([]types.LoadedModel, 0, len(ps.Models))
	for _, m := range ps.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		size := m.SizeVRAM
		if size == 0 {
			size = m.Size
		}
		out = append(out, types.LoadedModel{Name: name, SizeMB: int(size / (1024 * 1024))})
	}
	return out, nil
}

// Unload asks the host to release the model now (keep_alive 0).
func (c *OllamaClient) Unload(ctx context.Context, name string) error {
	zero := 0
	return c.doRequest(ctx, http.MethodPost, "/api/generate",
		generateRequest{Model: name, KeepAlive: &zero}, nil)
}

// Load warms the model with the host's default keep-alive.
func (c *OllamaClient) Load(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodPost, "/api/generate",
		generateRequest{Model: name}, nil)
}

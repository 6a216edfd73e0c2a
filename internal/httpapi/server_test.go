package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetd/internal/fleet"
	"fleetd/pkg/types"
)

// stubFleet is a canned Service implementation.
type stubFleet struct {
	status    types.FleetStatusResponse
	infos     map[string]types.ServiceStatusInfo
	startErr  error
	stopErr   error
	ensureErr error
	touched   []string
	keepSeen  []string
}

func newStubFleet() *stubFleet {
	running := types.ServiceStatusInfo{
		ID: "comfyui", Name: "ComfyUI", Status: "running", Healthy: true,
		PID: 4242, Endpoint: "http://127.0.0.1:8188", GPUIntensive: true,
	}
	stopped := types.ServiceStatusInfo{ID: "ollama", Name: "Ollama", Status: "stopped"}
	return &stubFleet{
		status: types.FleetStatusResponse{
			Services: map[string]types.ServiceStatusInfo{"comfyui": running, "ollama": stopped},
			GPULimit: 1, GPUActive: 1,
		},
		infos: map[string]types.ServiceStatusInfo{"comfyui": running, "ollama": stopped},
	}
}

func (s *stubFleet) FleetStatus() types.FleetStatusResponse { return s.status }

func (s *stubFleet) StatusOf(id string) (types.ServiceStatusInfo, error) {
	if info, ok := s.infos[id]; ok {
		return info, nil
	}
	return types.ServiceStatusInfo{}, fleet.ErrServiceNotFound(id)
}

func (s *stubFleet) Start(ctx context.Context, id string) (types.ServiceStatusInfo, error) {
	info, err := s.StatusOf(id)
	if err != nil {
		return info, err
	}
	return info, s.startErr
}

func (s *stubFleet) Stop(ctx context.Context, id string) (types.ServiceStatusInfo, error) {
	info, err := s.StatusOf(id)
	if err != nil {
		return info, err
	}
	return info, s.stopErr
}

func (s *stubFleet) EnsureRunning(ctx context.Context, id string, opts fleet.EnsureOptions) error {
	if _, err := s.StatusOf(id); err != nil {
		return err
	}
	return s.ensureErr
}

func (s *stubFleet) StopUnused(ctx context.Context, keepRunning []string) types.StopUnusedSummary {
	s.keepSeen = keepRunning
	return types.StopUnusedSummary{Stopped: []string{"comfyui"}, Kept: keepRunning}
}

func (s *stubFleet) Touch(id string) error {
	if _, err := s.StatusOf(id); err != nil {
		return err
	}
	s.touched = append(s.touched, id)
	return nil
}

type stubVRAM struct {
	summary types.VRAMSummary
	err     error
	lastArg bool
}

func (v *stubVRAM) ManageVRAM(ctx context.Context, preserveEmbedding bool) (types.VRAMSummary, error) {
	v.lastArg = preserveEmbedding
	return v.summary, v.err
}

type stubGPU struct {
	snap types.GPUTelemetry
	err  error
}

func (g *stubGPU) Snapshot(ctx context.Context) (types.GPUTelemetry, error) {
	return g.snap, g.err
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetServices(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet(), GPU: &stubGPU{snap: types.GPUTelemetry{TotalMB: 24576, UsedMB: 8192}}})
	rec := doRequest(t, mux, http.MethodGet, "/services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	var resp types.FleetStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Services) != 2 || resp.GPULimit != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.GPU == nil || resp.GPU.TotalMB != 24576 {
		t.Fatalf("expected live telemetry attached, got %+v", resp.GPU)
	}
}

func TestGetServicesOmitsTelemetryOnFailure(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet(), GPU: &stubGPU{err: errors.New("nvidia-smi failed")}})
	rec := doRequest(t, mux, http.MethodGet, "/services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("telemetry failure must not break the listing, got %d", rec.Code)
	}
	var resp types.FleetStatusResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.GPU != nil {
		t.Fatalf("expected telemetry omitted, got %+v", resp.GPU)
	}
}

func TestGetServiceByID(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodGet, "/services/comfyui", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodGet, "/services/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || er.Code != 404 {
		t.Fatalf("expected error envelope, got %s", rec.Body)
	}
}

func TestStartServiceSuccess(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var res types.CommandResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Success || res.State == nil || res.State.ID != "comfyui" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStartServiceBusy(t *testing.T) {
	stub := newStubFleet()
	stub.startErr = fleet.ErrServiceBusy("comfyui", 1)
	mux := NewMux(Deps{Fleet: stub})

	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/start", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body)
	}
	var res types.CommandResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Success || res.Code != "SERVICE_BUSY" {
		t.Fatalf("unexpected busy envelope: %+v", res)
	}
	if res.State == nil {
		t.Fatal("busy rejection must still carry the current state")
	}
}

func TestStopServiceTransientError(t *testing.T) {
	stub := newStubFleet()
	stub.stopErr = fleet.ErrTransient("stop comfyui", errors.New("sigterm timed out"))
	mux := NewMux(Deps{Fleet: stub})

	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/stop", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body)
	}
	var res types.CommandResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Success || res.Code != "TRANSIENT_ERROR" {
		t.Fatalf("unexpected envelope: %+v", res)
	}
}

func TestEnsureAcceptsOptionalBody(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})

	// No body at all is fine.
	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/ensure", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without body, got %d: %s", rec.Code, rec.Body)
	}
	// Tuning body is honored.
	rec = doRequest(t, mux, http.MethodPost, "/services/comfyui/ensure",
		`{"max_retries": 2, "start_timeout_seconds": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with body, got %d: %s", rec.Code, rec.Body)
	}
}

func TestEnsureRejectsMalformedBody(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/ensure", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEnsureRejectsWrongContentType(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	req := httptest.NewRequest(http.MethodPost, "/services/comfyui/ensure", strings.NewReader("max_retries: 2"))
	req.Header.Set("Content-Type", "text/yaml")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestTouchActivity(t *testing.T) {
	stub := newStubFleet()
	mux := NewMux(Deps{Fleet: stub})
	rec := doRequest(t, mux, http.MethodPost, "/services/comfyui/activity", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(stub.touched) != 1 || stub.touched[0] != "comfyui" {
		t.Fatalf("expected touch recorded, got %v", stub.touched)
	}
}

func TestStopUnused(t *testing.T) {
	stub := newStubFleet()
	mux := NewMux(Deps{Fleet: stub})
	rec := doRequest(t, mux, http.MethodPost, "/services/stop-unused", `{"keep_running":["ollama"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(stub.keepSeen) != 1 || stub.keepSeen[0] != "ollama" {
		t.Fatalf("expected keep list forwarded, got %v", stub.keepSeen)
	}
	var summary types.StopUnusedSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if len(summary.Stopped) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestManageVRAM(t *testing.T) {
	vram := &stubVRAM{summary: types.VRAMSummary{Attempted: 2, Unloaded: 2}}
	mux := NewMux(Deps{Fleet: newStubFleet(), VRAM: vram})

	rec := doRequest(t, mux, http.MethodPost, "/vram/manage", `{"preserve_embedding": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if !vram.lastArg {
		t.Fatal("expected preserve_embedding forwarded")
	}
	var summary types.VRAMSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.Unloaded != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestManageVRAMUnconfigured(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodPost, "/vram/manage", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a model host, got %d", rec.Code)
	}
}

func TestManageVRAMHostFailure(t *testing.T) {
	vram := &stubVRAM{err: errors.New("connection refused")}
	mux := NewMux(Deps{Fleet: newStubFleet(), VRAM: vram})
	rec := doRequest(t, mux, http.MethodPost, "/vram/manage", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestGetGPU(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet(), GPU: &stubGPU{snap: types.GPUTelemetry{TotalMB: 24576}}})
	rec := doRequest(t, mux, http.MethodGet, "/gpu", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	mux = NewMux(Deps{Fleet: newStubFleet()})
	rec = doRequest(t, mux, http.MethodGet, "/gpu", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without telemetry, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := NewMux(Deps{Fleet: newStubFleet()})
	rec := doRequest(t, mux, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestEventsStream(t *testing.T) {
	b := fleet.NewBroadcaster()
	mux := NewMux(Deps{Fleet: newStubFleet(), Events: b})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(fleet.Event{Type: fleet.EventServiceState, Subject: "comfyui", New: "running"})

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	if eventLine != "event: service_state" {
		t.Fatalf("unexpected event line: %q", eventLine)
	}
	var ev fleet.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if ev.Subject != "comfyui" || ev.New != "running" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

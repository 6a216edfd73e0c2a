package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetd/internal/fleet"
	"fleetd/pkg/types"
)

// Service defines the orchestration surface required by the HTTP API layer.
type Service interface {
	FleetStatus() types.FleetStatusResponse
	StatusOf(id string) (types.ServiceStatusInfo, error)
	Start(ctx context.Context, id string) (types.ServiceStatusInfo, error)
	Stop(ctx context.Context, id string) (types.ServiceStatusInfo, error)
	EnsureRunning(ctx context.Context, id string, opts fleet.EnsureOptions) error
	StopUnused(ctx context.Context, keepRunning []string) types.StopUnusedSummary
	Touch(id string) error
}

// VRAMService is the model memory management surface.
type VRAMService interface {
	ManageVRAM(ctx context.Context, preserveEmbedding bool) (types.VRAMSummary, error)
}

// TelemetrySource provides informational GPU snapshots.
type TelemetrySource interface {
	Snapshot(ctx context.Context) (types.GPUTelemetry, error)
}

// Subscriber exposes the event broadcaster to the SSE handler.
type Subscriber interface {
	Subscribe(buffer int) (<-chan fleet.Event, func())
}

// Deps bundles everything the mux serves.
type Deps struct {
	Fleet  Service
	VRAM   VRAMService
	GPU    TelemetrySource
	Events Subscriber
}

// NewMux builds the orchestration API router.
func NewMux(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// getServices godoc
	// @Summary List all services with their live state
	// @Produce json
	// @Success 200 {object} types.FleetStatusResponse
	// @Router /services [get]
	r.Get("/services", func(w http.ResponseWriter, r *http.Request) {
		resp := deps.Fleet.FleetStatus()
		if deps.GPU != nil {
			// Telemetry is recomputed live each cycle; failures leave it out.
			if snap, err := deps.GPU.Snapshot(r.Context()); err == nil {
				resp.GPU = &snap
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/services/{id}", func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Fleet.StatusOf(chi.URLParam(r, "id"))
		if err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	// startService godoc
	// @Summary Start a service (idempotent; subject to GPU admission)
	// @Produce json
	// @Success 200 {object} types.CommandResult
	// @Failure 429 {object} types.CommandResult
	// @Router /services/{id}/start [post]
	r.Post("/services/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		joined, cancel := requestCtx(r)
		defer cancel()
		info, err := deps.Fleet.Start(joined, id)
		if err != nil {
			writeCommandFailure(w, err, &info)
			return
		}
		writeJSON(w, http.StatusOK, types.CommandResult{Success: true, State: &info})
	})

	r.Post("/services/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		joined, cancel := requestCtx(r)
		defer cancel()
		info, err := deps.Fleet.Stop(joined, id)
		if err != nil {
			writeCommandFailure(w, err, &info)
			return
		}
		writeJSON(w, http.StatusOK, types.CommandResult{Success: true, State: &info})
	})

	r.Post("/services/{id}/ensure", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req types.EnsureRequest
		if err := decodeBody(w, r, &req, true); err != nil {
			return
		}
		opts := fleet.EnsureOptions{
			MaxRetries:                    req.MaxRetries,
			StartTimeout:                  time.Duration(req.StartTimeoutSeconds) * time.Second,
			PollInterval:                  time.Duration(req.PollIntervalMillis) * time.Millisecond,
			MaxConsecutiveTransientErrors: req.MaxConsecutiveTransientErrors,
		}
		joined, cancel := requestCtx(r)
		defer cancel()
		if err := deps.Fleet.EnsureRunning(joined, id, opts); err != nil {
			writeCommandFailure(w, err, nil)
			return
		}
		info, _ := deps.Fleet.StatusOf(id)
		writeJSON(w, http.StatusOK, types.CommandResult{Success: true, State: &info})
	})

	r.Post("/services/{id}/activity", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Fleet.Touch(chi.URLParam(r, "id")); err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.CommandResult{Success: true})
	})

	r.Post("/services/stop-unused", func(w http.ResponseWriter, r *http.Request) {
		var req types.StopUnusedRequest
		if err := decodeBody(w, r, &req, true); err != nil {
			return
		}
		joined, cancel := requestCtx(r)
		defer cancel()
		writeJSON(w, http.StatusOK, deps.Fleet.StopUnused(joined, req.KeepRunning))
	})

	// manageVRAM godoc
	// @Summary Evict loaded models, optionally preserving embedding models
	// @Produce json
	// @Success 200 {object} types.VRAMSummary
	// @Router /vram/manage [post]
	r.Post("/vram/manage", func(w http.ResponseWriter, r *http.Request) {
		if deps.VRAM == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "model host not configured")
			return
		}
		var req types.VRAMManageRequest
		if err := decodeBody(w, r, &req, true); err != nil {
			return
		}
		joined, cancel := requestCtx(r)
		defer cancel()
		summary, err := deps.VRAM.ManageVRAM(joined, req.PreserveEmbedding)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/gpu", func(w http.ResponseWriter, r *http.Request) {
		if deps.GPU == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "gpu telemetry not configured")
			return
		}
		snap, err := deps.GPU.Snapshot(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	if deps.Events != nil {
		r.Get("/events", eventsHandler(deps.Events))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeBody parses an optional/required JSON body with the configured
// size cap. It writes the error response itself and returns non-nil when
// the handler must bail.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		if optional {
			return nil
		}
		writeJSONError(w, http.StatusBadRequest, "request body required")
		return errBadBody
	}
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return errBadBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return errBadBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}

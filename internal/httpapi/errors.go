package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetd/internal/fleet"
	"fleetd/pkg/types"
)

var errBadBody = errors.New("bad request body")

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// mapFleetError converts orchestrator errors into an HTTP status and a
// stable machine-readable code. Expected failure modes keep their detail;
// anything unknown surfaces generically so internals do not leak.
func mapFleetError(err error) (status int, code, msg string) {
	switch {
	case fleet.IsServiceNotFound(err):
		return http.StatusNotFound, "SERVICE_NOT_FOUND", err.Error()
	case fleet.IsServiceBusy(err):
		return http.StatusTooManyRequests, "SERVICE_BUSY", err.Error()
	case fleet.IsUnauthorized(err):
		return http.StatusBadGateway, "SERVICE_UNAUTHORIZED", err.Error()
	case fleet.IsClientError(err):
		return http.StatusBadRequest, "CLIENT_ERROR", err.Error()
	case fleet.IsServiceErrorState(err):
		return http.StatusConflict, "SERVICE_ERROR_STATE", err.Error()
	case fleet.IsTransient(err):
		return http.StatusServiceUnavailable, "TRANSIENT_ERROR", err.Error()
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode(), "", he.Error()
		}
		if zlog != nil {
			zlog.Error().Err(err).Msg("internal orchestration failure")
		}
		return http.StatusInternalServerError, "INTERNAL", "internal error"
	}
}

// writeCommandFailure emits the structured CommandResult envelope for a
// failed lifecycle command.
func writeCommandFailure(w http.ResponseWriter, err error, state *types.ServiceStatusInfo) {
	status, code, msg := mapFleetError(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("gpu_admission")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.CommandResult{
		Success: false,
		Code:    code,
		Message: msg,
		State:   state,
	})
}

// writeCommandError is writeCommandFailure without a state snapshot.
func writeCommandError(w http.ResponseWriter, err error) {
	status, _, msg := mapFleetError(err)
	writeJSONError(w, status, msg)
}

package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// serviceNotFoundError signals an unknown service id (never retried).
type serviceNotFoundError struct{ id string }

func (e serviceNotFoundError) Error() string { return "service not found: " + e.id }

// ErrServiceNotFound constructs an error for an id absent from the fleet.
func ErrServiceNotFound(id string) error { return serviceNotFoundError{id: id} }

// IsServiceNotFound reports whether err indicates a missing service id.
func IsServiceNotFound(err error) bool {
	var e serviceNotFoundError
	return errors.As(err, &e)
}

// serviceBusyError signals GPU admission rejection for SERVICE_BUSY mapping.
type serviceBusyError struct {
	id    string
	limit int
}

func (e serviceBusyError) Error() string {
	return fmt.Sprintf("service busy: %s: gpu concurrency limit %d reached", e.id, e.limit)
}

// ErrServiceBusy constructs a GPU admission rejection.
func ErrServiceBusy(id string, limit int) error { return serviceBusyError{id: id, limit: limit} }

// IsServiceBusy reports whether err indicates admission rejection (return 429).
func IsServiceBusy(err error) bool {
	var e serviceBusyError
	return errors.As(err, &e)
}

// unauthorizedError signals a 401/403 from a service endpoint. Fatal.
type unauthorizedError struct {
	op     string
	status int
}

func (e unauthorizedError) Error() string {
	return fmt.Sprintf("%s: unauthorized (http %d)", e.op, e.status)
}

// IsUnauthorized reports whether err indicates a 401/403 response.
func IsUnauthorized(err error) bool {
	var e unauthorizedError
	return errors.As(err, &e)
}

// clientError signals any other 4xx: caller misuse, never retried.
type clientError struct {
	op     string
	status int
}

func (e clientError) Error() string {
	return fmt.Sprintf("%s: client error (http %d)", e.op, e.status)
}

// IsClientError reports whether err indicates a non-auth 4xx response.
func IsClientError(err error) bool {
	var e clientError
	return errors.As(err, &e)
}

// transientError wraps network failures, 5xx and timeouts. Retried with a
// bounded budget by EnsureRunning.
type transientError struct {
	op    string
	cause error
}

func (e transientError) Error() string { return e.op + ": " + e.cause.Error() }
func (e transientError) Unwrap() error { return e.cause }

// ErrTransient wraps cause as a retriable failure of op.
func ErrTransient(op string, cause error) error { return transientError{op: op, cause: cause} }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var e transientError
	return errors.As(err, &e)
}

// errorStateError signals a service stuck in the error state. It is
// surfaced immediately and cleared only by an explicit start or stop.
type errorStateError struct {
	id  string
	msg string
}

func (e errorStateError) Error() string {
	if e.msg == "" {
		return "service in error state: " + e.id
	}
	return "service in error state: " + e.id + ": " + e.msg
}

// IsServiceErrorState reports whether err indicates the error lifecycle state.
func IsServiceErrorState(err error) bool {
	var e errorStateError
	return errors.As(err, &e)
}

// classifyHTTP converts a health/endpoint status code into the taxonomy.
// 2xx/3xx yields nil.
func classifyHTTP(op string, status int) error {
	switch {
	case status >= 200 && status < 400:
		return nil
	case status == 401 || status == 403:
		return unauthorizedError{op: op, status: status}
	case status >= 400 && status < 500:
		return clientError{op: op, status: status}
	default:
		return transientError{op: op, cause: fmt.Errorf("http %d", status)}
	}
}

// classifyErr folds transport-level failures into the taxonomy. Errors that
// already carry a classification pass through unchanged.
func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsServiceNotFound(err) || IsServiceBusy(err) || IsUnauthorized(err) ||
		IsClientError(err) || IsTransient(err) || IsServiceErrorState(err) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return transientError{op: op, cause: err}
	}
	// Unknown transport failures are assumed retriable.
	return transientError{op: op, cause: err}
}

// isFatal reports whether err must abort a retry loop immediately.
func isFatal(err error) bool {
	return IsServiceNotFound(err) || IsUnauthorized(err) || IsClientError(err) ||
		IsServiceErrorState(err)
}

// wrapOp annotates a low-level adapter failure with service id, operation
// and elapsed time before it surfaces.
func wrapOp(id, op string, start time.Time, err error) error {
	return fmt.Errorf("%s %s after %s: %w", op, id, time.Since(start).Round(time.Millisecond), err)
}

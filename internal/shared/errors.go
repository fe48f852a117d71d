package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// Remote API errors
	ErrNetwork  = fmt.Errorf("network error")
	ErrServer   = fmt.Errorf("server error")
	ErrRejected = fmt.Errorf("request rejected by server")
	ErrOffline  = fmt.Errorf("offline")

	// Local state errors
	ErrStorage        = fmt.Errorf("local storage error")
	ErrSongNotFound   = fmt.Errorf("song not found")
	ErrSyncInProgress = fmt.Errorf("sync already in progress")
)

// FieldError describes one failed constraint on an input field.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (f FieldError) String() string {
	if f.Param == "" {
		return fmt.Sprintf("%s: %s", f.Field, f.Rule)
	}
	return fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param)
}

// ValidationError is returned when a song fails its schema constraints.
//
// It is never retried and never queued offline.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RemoteError carries the HTTP status of a failed song API call.
//
// Unwraps to [ErrValidation] for 400/422, [ErrServer] for 408/429/5xx and [ErrRejected] otherwise.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.Unwrap(), e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Unwrap(), e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return ErrServer
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// IsTransient reports whether err is a network or server failure worth queuing and retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer) || errors.Is(err, ErrOffline)
}

// Describe renders a user-facing explanation for a failed mutation.
func Describe(err error) string {
	switch {
	case err == nil:
		return "saved"
	case errors.Is(err, ErrValidation):
		return "rejected — invalid data: " + err.Error()
	case errors.Is(err, ErrStorage):
		return "not saved — local storage failure: " + err.Error()
	case errors.Is(err, ErrSongNotFound):
		return "not found: " + err.Error()
	default:
		return "rejected — server error: " + err.Error()
	}
}

package restclient

import (
	"errors"
	"net/http"
)

var (
	// ErrNetwork marks requests that never produced an HTTP response.
	ErrNetwork = errors.New("network failure")
	// ErrAuthRejected marks 401 responses and tokens the backend refused.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrValidation marks client input rejected before anything was sent.
	ErrValidation = errors.New("validation failed")
	// ErrMalformed marks response bodies that could not be decoded.
	ErrMalformed = errors.New("malformed response")
)

// APIError represents a backend error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is(err, ErrAuthRejected) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrAuthRejected
	}
	return nil
}

// ValidationError reports a missing or invalid client-side field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Kind is the coarse failure class used in logs and session error records.
type Kind string

const (
	KindNone         Kind = ""
	KindNetwork      Kind = "network"
	KindAuthRejected Kind = "auth_rejected"
	KindValidation   Kind = "validation"
	KindBackend      Kind = "backend"
	KindMalformed    Kind = "malformed"
	KindUnknown      Kind = "unknown"
)

// Classify maps err onto the failure taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrAuthRejected):
		return KindAuthRejected
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindBackend
	}
	return KindUnknown
}

// ClassifyString is Classify for callers that want a plain label.
func ClassifyString(err error) string {
	return string(Classify(err))
}

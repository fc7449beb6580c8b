package app

import "errors"

var (
	// ErrNotAuthenticated indicates the domain holds no identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionPending indicates the start-up check of the domain has not finished.
	ErrSessionPending = errors.New("session check pending")
)

package client

import "errors"

var (
	// ErrNotFound is returned when the remote service answers with a 4xx status.
	ErrNotFound = errors.New("remote resource not found")

	// ErrServiceUnavailable is returned on 5xx answers, transport failures and timeouts.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrCircuitOpen is returned without a network call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

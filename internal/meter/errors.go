package meter

import "errors"

// Sentinel errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRequestTimeout indicates the meter did not answer a property
	// read within the request timeout.
	ErrRequestTimeout = errors.New("meter: request timed out")

	// ErrStopped is returned when an operation is interrupted by
	// bridge shutdown.
	ErrStopped = errors.New("meter: bridge stopped")
)

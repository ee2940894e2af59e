package influxdb

import "errors"

// Sentinel errors, matchable with errors.Is.
var (
	// ErrNotConnected means the client has been closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed means the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps synchronous write problems. Batched writes
	// fail asynchronously and go to the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when the sink is turned off in
	// config. Callers treat it as "run without metrics", not a fault.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

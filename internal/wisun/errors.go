package wisun

import "errors"

// Sentinel errors for Wi-SUN module communication.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed indicates the serial device or TCP bridge could
	// not be opened, or the module failed the initial handshake.
	ErrConnectionFailed = errors.New("wisun: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed client.
	ErrNotConnected = errors.New("wisun: not connected")

	// ErrCommandFailed indicates the module answered a command with FAIL.
	ErrCommandFailed = errors.New("wisun: command failed")

	// ErrCommandTimeout indicates the module did not answer within the
	// command timeout.
	ErrCommandTimeout = errors.New("wisun: command timed out")

	// ErrScanFailed indicates no PAN was found after exhausting all scan
	// durations. Usually means the Route-B ID does not match the meter
	// or the meter is out of radio range.
	ErrScanFailed = errors.New("wisun: active scan found no PAN")

	// ErrJoinFailed indicates PANA authentication with the meter failed.
	// Usually means the Route-B password is wrong.
	ErrJoinFailed = errors.New("wisun: PANA join failed")

	// ErrNoSession is returned when sending without an established
	// PANA session.
	ErrNoSession = errors.New("wisun: no active session")

	// ErrSessionLost indicates the meter closed or expired the PANA
	// session. The caller should scan and join again.
	ErrSessionLost = errors.New("wisun: session lost")

	// ErrInvalidEvent indicates a module event line could not be parsed.
	ErrInvalidEvent = errors.New("wisun: invalid event line")
)

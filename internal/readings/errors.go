package readings

import "errors"

// Sentinel errors for the readings store.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoReadings indicates the store has no rows yet.
	ErrNoReadings = errors.New("readings: no readings recorded")

	// ErrInvalidReading indicates a reading failed validation before insert.
	ErrInvalidReading = errors.New("readings: invalid reading")

	// ErrInvalidRange indicates a query range or limit is malformed.
	ErrInvalidRange = errors.New("readings: invalid query range")
)

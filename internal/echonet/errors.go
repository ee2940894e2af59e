package echonet

import "errors"

// Domain errors for the ECHONET Lite codec.
var (
	// ErrInvalidFrame is returned when a byte buffer cannot be parsed
	// as an ECHONET Lite frame (bad header, truncated data).
	ErrInvalidFrame = errors.New("echonet: invalid frame")

	// ErrInvalidProperty is returned when a property is constructed from
	// an invalid value (negative, or too wide for the PDC field).
	ErrInvalidProperty = errors.New("echonet: invalid property value")

	// ErrInvalidObject is returned when an object code does not fit the
	// 24-bit EOJ field.
	ErrInvalidObject = errors.New("echonet: invalid object code")

	// ErrTooManyProperties is returned when a frame would carry more
	// properties than the 1-byte OPC field can represent.
	ErrTooManyProperties = errors.New("echonet: too many properties")

	// ErrPropertyNotFound is returned when a frame has no property with
	// the requested EPC.
	ErrPropertyNotFound = errors.New("echonet: property not found")

	// ErrPropertyTooWide is returned when a property value is too wide
	// for the fixed-width accessor. Use BigInt for wider values.
	ErrPropertyTooWide = errors.New("echonet: property value too wide")
)

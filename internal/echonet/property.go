package echonet

import (
	"fmt"
	"math/big"
	"math/bits"
)

// maxUintPropertyBytes is the widest EDT the fixed-width accessor accepts.
// Wider values must be read with BigInt.
const maxUintPropertyBytes = 6

// Property is one EPC/PDC/EDT entry within a Frame.
//
// Data holds the EDT exactly as it appears on the wire: a big-endian
// unsigned integer of len(Data) bytes. A nil or empty Data is a
// zero-length property (PDC 0), which reads as value 0.
type Property struct {
	// Code is the EPC identifying the property's meaning.
	Code byte

	// Data is the EDT payload. Its length is the PDC.
	Data []byte
}

// NewProperty creates a property from an unsigned integer value.
//
// The EDT length is the minimal byte count able to represent the value;
// value 0 still encodes as a single zero byte, not an empty EDT.
func NewProperty(code byte, value uint64) Property {
	n := (bits.Len64(value) + 7) / 8
	if n == 0 {
		n = 1
	}
	data := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		data[i] = byte(value)
		value >>= 8
	}
	return Property{Code: code, Data: data}
}

// NewPropertyBig creates a property from an arbitrary-precision value.
//
// Works like NewProperty for values wider than 64 bits. Fails if the
// value is negative, or so wide its byte count does not fit the PDC field.
func NewPropertyBig(code byte, value *big.Int) (Property, error) {
	if value == nil || value.Sign() < 0 {
		return Property{}, fmt.Errorf("%w: EPC 0x%02X value must be a non-negative integer", ErrInvalidProperty, code)
	}

	data := value.Bytes() // empty for zero
	if len(data) == 0 {
		data = []byte{0x00}
	}
	if len(data) > 0xFF {
		return Property{}, fmt.Errorf("%w: EPC 0x%02X value needs %d bytes, PDC holds at most 255", ErrInvalidProperty, code, len(data))
	}

	return Property{Code: code, Data: data}, nil
}

// NewPropertyBytes creates a property carrying raw EDT bytes.
// The bytes are copied. Fails if more than 255 bytes are supplied.
func NewPropertyBytes(code byte, data []byte) (Property, error) {
	if len(data) > 0xFF {
		return Property{}, fmt.Errorf("%w: EPC 0x%02X EDT is %d bytes, PDC holds at most 255", ErrInvalidProperty, code, len(data))
	}
	p := Property{Code: code, Data: make([]byte, len(data))}
	copy(p.Data, data)
	return p, nil
}

// Length returns the PDC, the number of EDT bytes.
func (p Property) Length() int {
	return len(p.Data)
}

// Uint64 returns the EDT as an unsigned integer.
// Fails with ErrPropertyTooWide for EDTs wider than 6 bytes.
func (p Property) Uint64() (uint64, error) {
	if len(p.Data) > maxUintPropertyBytes {
		return 0, fmt.Errorf("%w: EPC 0x%02X EDT is %d bytes (max %d for Uint64)",
			ErrPropertyTooWide, p.Code, len(p.Data), maxUintPropertyBytes)
	}
	var v uint64
	for _, b := range p.Data {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// BigInt returns the EDT as an arbitrary-precision integer.
// A zero-length EDT yields 0.
func (p Property) BigInt() *big.Int {
	return new(big.Int).SetBytes(p.Data)
}

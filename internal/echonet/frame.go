package echonet

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"
)

// Frame header and layout constants.
const (
	// ehd1 and ehd2 form the fixed two-byte header of every frame
	// (ECHONET Lite, format 1).
	ehd1 byte = 0x10
	ehd2 byte = 0x81

	// frameMinLength is the smallest valid frame: EHD(2) + TID(2) +
	// SEOJ(3) + DEOJ(3) + ESV(1) + OPC(1).
	frameMinLength = 12

	// maxObjectCode is the largest value the 3-byte EOJ fields can carry.
	maxObjectCode = 0xFFFFFF

	// maxProperties is the largest value the 1-byte OPC field can carry.
	maxProperties = 0xFF
)

// Frame is one ECHONET Lite message.
//
// A Frame is a value: once built by NewFrame or ParseFrame it is never
// mutated, so frames may be shared freely across goroutines.
type Frame struct {
	// TransactionID correlates a request with its response.
	TransactionID uint16

	// SourceObject is the sending object's EOJ code (24-bit).
	SourceObject uint32

	// DestinationObject is the receiving object's EOJ code (24-bit).
	DestinationObject uint32

	// ServiceCode is the ESV identifying the operation.
	ServiceCode byte

	// Properties holds the EPC/PDC/EDT entries in wire order.
	// Order is preserved through parse/encode round trips.
	Properties []Property
}

// NewFrame builds a frame from its parts.
//
// Object codes must fit the 24-bit EOJ fields and the property list must
// fit the 1-byte OPC field; both are rejected here rather than silently
// truncated at encode time. The property slice is copied.
//
// Callers that need a fresh transaction id draw one with NewTransactionID.
func NewFrame(tid uint16, seoj, deoj uint32, esv byte, props []Property) (Frame, error) {
	if seoj > maxObjectCode {
		return Frame{}, fmt.Errorf("%w: SEOJ 0x%X exceeds 24 bits", ErrInvalidObject, seoj)
	}
	if deoj > maxObjectCode {
		return Frame{}, fmt.Errorf("%w: DEOJ 0x%X exceeds 24 bits", ErrInvalidObject, deoj)
	}
	if len(props) > maxProperties {
		return Frame{}, fmt.Errorf("%w: %d properties, OPC holds at most %d", ErrTooManyProperties, len(props), maxProperties)
	}

	f := Frame{
		TransactionID:     tid,
		SourceObject:      seoj,
		DestinationObject: deoj,
		ServiceCode:       esv,
		Properties:        make([]Property, len(props)),
	}
	copy(f.Properties, props)
	return f, nil
}

// NewGetFrame builds a Get request from the controller's point of view:
// one zero-length property (PDC 0) per requested EPC.
func NewGetFrame(tid uint16, seoj, deoj uint32, epcs ...byte) (Frame, error) {
	props := make([]Property, 0, len(epcs))
	for _, epc := range epcs {
		props = append(props, Property{Code: epc, Data: []byte{}})
	}
	return NewFrame(tid, seoj, deoj, ESVGet, props)
}

// NewTransactionID draws a transaction id uniformly from [0, 0xFFFF].
//
// Ids are not guaranteed unique across calls; collisions are merely
// unlikely, which is enough for correlating requests on a link that
// carries one outstanding request at a time.
func NewTransactionID() uint16 {
	return uint16(rand.IntN(1 << 16))
}

// ParseFrame decodes a raw byte buffer into a Frame.
//
// Parsing is all-or-nothing: any malformed or truncated input fails with
// ErrInvalidFrame and no partial frame is returned. Property order on the
// wire is preserved.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < frameMinLength {
		return Frame{}, fmt.Errorf("%w: frame too short (%d bytes, need at least %d)", ErrInvalidFrame, len(data), frameMinLength)
	}
	if data[0] != ehd1 || data[1] != ehd2 {
		return Frame{}, fmt.Errorf("%w: invalid header %02X%02X", ErrInvalidFrame, data[0], data[1])
	}

	f := Frame{
		TransactionID:     binary.BigEndian.Uint16(data[2:4]),
		SourceObject:      uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6]),
		DestinationObject: uint32(data[7])<<16 | uint32(data[8])<<8 | uint32(data[9]),
		ServiceCode:       data[10],
	}

	count := int(data[11])
	f.Properties = make([]Property, 0, count)

	offset := frameMinLength
	for i := 0; i < count; i++ {
		if len(data) < offset+2 {
			return Frame{}, fmt.Errorf("%w: truncated at property %d of %d", ErrInvalidFrame, i+1, count)
		}
		epc := data[offset]
		pdc := int(data[offset+1])
		offset += 2

		if len(data) < offset+pdc {
			return Frame{}, fmt.Errorf("%w: incomplete value for EPC 0x%02X (need %d bytes, have %d)",
				ErrInvalidFrame, epc, pdc, len(data)-offset)
		}
		edt := make([]byte, pdc)
		copy(edt, data[offset:offset+pdc])
		offset += pdc

		f.Properties = append(f.Properties, Property{Code: epc, Data: edt})
	}

	return f, nil
}

// Encode produces the canonical byte encoding of the frame.
//
// Encode never fails for frames built by NewFrame or ParseFrame, and is
// the exact inverse of ParseFrame.
func (f Frame) Encode() []byte {
	size := frameMinLength
	for _, p := range f.Properties {
		size += 2 + len(p.Data)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, ehd1, ehd2)
	buf = binary.BigEndian.AppendUint16(buf, f.TransactionID)
	buf = append(buf, byte(f.SourceObject>>16), byte(f.SourceObject>>8), byte(f.SourceObject))
	buf = append(buf, byte(f.DestinationObject>>16), byte(f.DestinationObject>>8), byte(f.DestinationObject))
	buf = append(buf, f.ServiceCode, byte(len(f.Properties)))

	for _, p := range f.Properties {
		buf = append(buf, p.Code, byte(len(p.Data)))
		buf = append(buf, p.Data...)
	}

	return buf
}

// Property returns the first property with the given EPC.
// Fails with ErrPropertyNotFound if the frame has none.
func (f Frame) Property(code byte) (Property, error) {
	for _, p := range f.Properties {
		if p.Code == code {
			return p, nil
		}
	}
	return Property{}, fmt.Errorf("%w: EPC 0x%02X", ErrPropertyNotFound, code)
}

// PropertyUint64 returns the first matching property's EDT as an unsigned
// integer. Fails with ErrPropertyNotFound if absent, or ErrPropertyTooWide
// if the stored EDT is wider than 6 bytes.
func (f Frame) PropertyUint64(code byte) (uint64, error) {
	p, err := f.Property(code)
	if err != nil {
		return 0, err
	}
	return p.Uint64()
}

// PropertyBigInt returns the first matching property's EDT as an
// arbitrary-precision integer, with no width restriction.
func (f Frame) PropertyBigInt(code byte) (*big.Int, error) {
	p, err := f.Property(code)
	if err != nil {
		return nil, err
	}
	return p.BigInt(), nil
}

// IsResponseTo reports whether this frame answers the given request:
// object codes swapped and transaction ids equal. ESV and properties are
// deliberately ignored, since both legitimately differ between a request
// and its response.
func (f Frame) IsResponseTo(request Frame) bool {
	return f.SourceObject == request.DestinationObject &&
		f.DestinationObject == request.SourceObject &&
		f.TransactionID == request.TransactionID
}

// String returns a human-readable rendering for logs. It is not part of
// the wire contract.
func (f Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Frame{TID:0x%04X, SEOJ:0x%06X, DEOJ:0x%06X, ESV:0x%02X, EPC:[",
		f.TransactionID, f.SourceObject, f.DestinationObject, f.ServiceCode)
	for i, p := range f.Properties {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02X=%X", p.Code, p.Data)
	}
	fmt.Fprintf(&sb, "], Raw:%X}", f.Encode())
	return sb.String()
}

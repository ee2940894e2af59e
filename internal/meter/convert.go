package meter

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/echonet"
)

// Sentinel values the meter reports instead of a measurement.
// A nil pointer in the decoded result means "no data".
const (
	powerNoData    uint32 = 0x7FFFFFFE
	powerOverflow  uint32 = 0x7FFFFFFF
	powerUnderflow uint32 = 0x80000000

	currentNoData    uint16 = 0x7FFE
	currentOverflow  uint16 = 0x7FFF
	currentUnderflow uint16 = 0x8000

	energyNoData uint32 = 0xFFFFFFFE
)

// decodeInstantPower converts an EPC 0xE7 value (signed 32-bit watts).
// Returns nil when the meter reported a no-data or overflow sentinel.
func decodeInstantPower(p echonet.Property) (*float64, error) {
	if p.Length() != 4 {
		return nil, fmt.Errorf("instant power: expected 4 bytes, got %d", p.Length())
	}
	raw := binary.BigEndian.Uint32(p.Data)
	switch raw {
	case powerNoData, powerOverflow, powerUnderflow:
		return nil, nil
	}
	w := float64(int32(raw))
	return &w, nil
}

// decodeInstantCurrent converts an EPC 0xE8 value: two signed 16-bit
// phase currents in 0.1 A units (R phase, then T phase). A single-phase
// meter reports the no-data sentinel for the T phase.
func decodeInstantCurrent(p echonet.Property) (r, t *float64, err error) {
	if p.Length() != 4 {
		return nil, nil, fmt.Errorf("instant current: expected 4 bytes, got %d", p.Length())
	}
	r = decodePhase(binary.BigEndian.Uint16(p.Data[0:2]))
	t = decodePhase(binary.BigEndian.Uint16(p.Data[2:4]))
	return r, t, nil
}

func decodePhase(raw uint16) *float64 {
	switch raw {
	case currentNoData, currentOverflow, currentUnderflow:
		return nil
	}
	a := float64(int16(raw)) * 0.1
	return &a
}

// decodeCumulativeEnergy converts an EPC 0xE0 or 0xE3 value (unsigned
// 32-bit counter) to kWh using the meter's coefficient and unit.
func decodeCumulativeEnergy(p echonet.Property, coefficient uint32, unit float64) (*float64, error) {
	if p.Length() != 4 {
		return nil, fmt.Errorf("cumulative energy: expected 4 bytes, got %d", p.Length())
	}
	raw := binary.BigEndian.Uint32(p.Data)
	if raw == energyNoData || raw == 0xFFFFFFFF {
		return nil, nil
	}
	kwh := float64(raw) * float64(coefficient) * unit
	return &kwh, nil
}

// decodeCoefficient converts an EPC 0xD3 value (unsigned 32-bit
// multiplier). Meters without current transformers omit this property
// and callers should default to 1.
func decodeCoefficient(p echonet.Property) (uint32, error) {
	if p.Length() != 4 {
		return 0, fmt.Errorf("coefficient: expected 4 bytes, got %d", p.Length())
	}
	return binary.BigEndian.Uint32(p.Data), nil
}

// decodeEnergyUnit converts an EPC 0xE1 value to the kWh multiplier.
func decodeEnergyUnit(p echonet.Property) (float64, error) {
	if p.Length() != 1 {
		return 0, fmt.Errorf("energy unit: expected 1 byte, got %d", p.Length())
	}
	unit := echonet.CumulativeEnergyUnit(p.Data[0])
	if unit == 0 {
		return 0, fmt.Errorf("energy unit: reserved code %02X", p.Data[0])
	}
	return unit, nil
}

// fixedTimeEnergy is a decoded EPC 0xEA value: the cumulative energy
// captured at the most recent 30-minute mark.
type fixedTimeEnergy struct {
	MeasuredAt    time.Time
	CumulativeKWh *float64
}

// decodeFixedTimeEnergy converts an EPC 0xEA value: a 7-byte timestamp
// (year, month, day, hour, minute, second) followed by an unsigned
// 32-bit cumulative energy counter.
func decodeFixedTimeEnergy(p echonet.Property, coefficient uint32, unit float64) (fixedTimeEnergy, error) {
	if p.Length() != 11 {
		return fixedTimeEnergy{}, fmt.Errorf("fixed-time energy: expected 11 bytes, got %d", p.Length())
	}
	d := p.Data

	// The meter reports local time (JST) without a zone; it is kept in
	// the local zone of the host, which is expected to match.
	measuredAt := time.Date(
		int(binary.BigEndian.Uint16(d[0:2])),
		time.Month(d[2]), int(d[3]),
		int(d[4]), int(d[5]), int(d[6]), 0,
		time.Local,
	)

	raw := binary.BigEndian.Uint32(d[7:11])
	var kwh *float64
	if raw != energyNoData && raw != 0xFFFFFFFF {
		v := float64(raw) * float64(coefficient) * unit
		kwh = &v
	}

	return fixedTimeEnergy{MeasuredAt: measuredAt, CumulativeKWh: kwh}, nil
}

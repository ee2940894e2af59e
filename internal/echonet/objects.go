package echonet

// ESV (service) codes. These identify the operation a frame performs.
const (
	// ESVSetI is a property write without response.
	ESVSetI byte = 0x60

	// ESVSetC is a property write with response.
	ESVSetC byte = 0x61

	// ESVGet is a property read request.
	ESVGet byte = 0x62

	// ESVInfReq requests a notification.
	ESVInfReq byte = 0x63

	// ESVSetRes is the response to ESVSetC.
	ESVSetRes byte = 0x71

	// ESVGetRes is the response to ESVGet.
	ESVGetRes byte = 0x72

	// ESVInf is an unsolicited property notification.
	ESVInf byte = 0x73

	// ESVInfC is a notification with response required.
	ESVInfC byte = 0x74

	// ESVSetISNA, ESVSetCSNA, ESVGetSNA and ESVInfSNA are the
	// "service not available" error responses to the matching requests.
	ESVSetISNA byte = 0x50
	ESVSetCSNA byte = 0x51
	ESVGetSNA  byte = 0x52
	ESVInfSNA  byte = 0x53
)

// EOJ object codes (class group, class, instance) used on the B-route link.
const (
	// ObjectController is the HEMS controller (class 0x05FF), instance 1.
	ObjectController uint32 = 0x05FF01

	// ObjectSmartMeter is the low-voltage smart electric energy meter
	// (class 0x0288), instance 1.
	ObjectSmartMeter uint32 = 0x028801

	// ObjectNodeProfile is the node profile object, instance 1.
	ObjectNodeProfile uint32 = 0x0EF001
)

// EPC property codes for the low-voltage smart electric energy meter.
const (
	// EPCOperationStatus is the on/off status (0x30 = on, 0x31 = off).
	EPCOperationStatus byte = 0x80

	// EPCCoefficient is the multiplier applied to cumulative energy values.
	EPCCoefficient byte = 0xD3

	// EPCCumulativeEnergy is the cumulative energy in the normal direction.
	EPCCumulativeEnergy byte = 0xE0

	// EPCCumulativeEnergyUnit encodes the unit of cumulative energy values
	// (see CumulativeEnergyUnit).
	EPCCumulativeEnergyUnit byte = 0xE1

	// EPCCumulativeEnergyReverse is the cumulative energy in the reverse
	// direction (power fed back to the grid).
	EPCCumulativeEnergyReverse byte = 0xE3

	// EPCInstantPower is the instantaneous power in watts (signed 32-bit).
	EPCInstantPower byte = 0xE7

	// EPCInstantCurrent is the instantaneous current, two signed 16-bit
	// values (R phase, T phase) in 0.1 A units.
	EPCInstantCurrent byte = 0xE8

	// EPCCumulativeEnergyAtFixedTime is the cumulative energy measured at
	// the most recent 30-minute mark, with its timestamp.
	EPCCumulativeEnergyAtFixedTime byte = 0xEA
)

// CumulativeEnergyUnit converts an EPC 0xE1 value to the kWh multiplier
// for cumulative energy readings. Returns 0 for reserved values.
func CumulativeEnergyUnit(code byte) float64 {
	switch code {
	case 0x00:
		return 1
	case 0x01:
		return 0.1
	case 0x02:
		return 0.01
	case 0x03:
		return 0.001
	case 0x04:
		return 0.0001
	case 0x0A:
		return 10
	case 0x0B:
		return 100
	case 0x0C:
		return 1000
	case 0x0D:
		return 10000
	default:
		return 0
	}
}

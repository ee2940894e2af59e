package meter

import (
	"fmt"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/echonet"
)

// handleNotification processes an unsolicited INF frame from the meter.
// Smart meters push the fixed-time cumulative reading every 30 minutes
// and announce operation status changes this way.
func (b *Bridge) handleNotification(frame echonet.Frame) {
	coeff, unit := b.Coefficient(), b.EnergyUnit()

	msg := EventMessage{
		Timestamp:  time.Now().UTC(),
		Properties: make(map[string]any, len(frame.Properties)),
	}

	for _, p := range frame.Properties {
		if p.Length() == 0 {
			continue
		}
		switch p.Code {
		case echonet.EPCOperationStatus:
			msg.Properties["operation_status"] = p.Data[0] == 0x30

		case echonet.EPCCumulativeEnergy:
			kwh, err := decodeCumulativeEnergy(p, coeff, unit)
			if err != nil || kwh == nil {
				continue
			}
			msg.Properties["cumulative_kwh"] = *kwh

		case echonet.EPCInstantPower:
			w, err := decodeInstantPower(p)
			if err != nil || w == nil {
				continue
			}
			msg.Properties["instant_power_w"] = *w

		case echonet.EPCCumulativeEnergyAtFixedTime:
			ft, err := decodeFixedTimeEnergy(p, coeff, unit)
			if err != nil {
				b.logError("bad fixed-time energy value", err)
				continue
			}
			entry := map[string]any{
				"measured_at": ft.MeasuredAt.Format(time.RFC3339),
			}
			if ft.CumulativeKWh != nil {
				entry["cumulative_kwh"] = *ft.CumulativeKWh
				if b.metrics != nil {
					b.metrics.WriteCumulativeEnergy("normal", *ft.CumulativeKWh)
				}
			}
			msg.Properties["fixed_time_energy"] = entry

		default:
			// Report unknown properties as raw hex so nothing is lost
			msg.Properties[fmt.Sprintf("epc_%02x", p.Code)] = fmt.Sprintf("%X", p.Data)
		}
	}

	if len(msg.Properties) == 0 {
		return
	}

	if err := b.mqtt.PublishJSON(b.topics.MeterEvent(), msg, false); err != nil {
		b.logError("failed to publish meter event", err)
	}
}

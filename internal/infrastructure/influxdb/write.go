package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMeterReading writes a polled smart meter measurement to InfluxDB.
//
// This is the primary method for recording meter telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - instantPowerW: Instantaneous power in watts (negative when exporting)
//   - currentRA: R-phase current in amperes
//   - currentTA: T-phase current in amperes (0 for single-phase meters)
//
// Example:
//
//	client.WriteMeterReading(423, 4.2, 1.8)
func (c *Client) WriteMeterReading(instantPowerW float64, currentRA, currentTA float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"meter",
		map[string]string{
			"source": "wisun",
		},
		map[string]interface{}{
			"instant_power_w": instantPowerW,
			"current_r_a":     currentRA,
			"current_t_a":     currentTA,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCumulativeEnergy writes a cumulative energy register value.
//
// Parameters:
//   - direction: "normal" (import from grid) or "reverse" (export to grid)
//   - energyKWh: Register value in kWh, already scaled by the meter's unit
//     and coefficient
func (c *Client) WriteCumulativeEnergy(direction string, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"source":    "wisun",
			"direction": direction,
		},
		map[string]interface{}{
			"cumulative_kwh": energyKWh,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkMetric records a radio health indicator, e.g. the LQI seen
// during the PAN scan.
func (c *Client) WriteLinkMetric(metricName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"wisun_link",
		map[string]string{
			"metric": metricName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point, for measurements the helpers above
// do not cover. Keep tag cardinality low.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with an explicit timestamp.
// Fixed-time cumulative energy readings carry the meter's own
// measurement time, which can lag the poll by up to 30 minutes.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

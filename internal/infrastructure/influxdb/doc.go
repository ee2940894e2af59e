// Package influxdb is the gateway's optional time-series sink.
//
// Where SQLite keeps a bounded recent history for the HTTP API, this
// package streams the same telemetry into InfluxDB v2 for long-term
// dashboards: instantaneous power and per-phase current from each
// poll, cumulative energy registers in both directions, and Wi-SUN
// link quality.
//
// Writes go through the official influxdb-client-go batched WriteAPI,
// so the poll loop never blocks on the network; batch size and flush
// interval come from config.yaml. Because batching defers the actual
// send, write failures arrive through the SetOnError callback rather
// than as return values.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics
//	}
//	defer client.Close()
//
//	client.WriteMeterReading(423, 4.2, 1.8)
//
// All methods are safe for concurrent use.
package influxdb

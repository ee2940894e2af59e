// Package readings provides local persistence for smart meter readings.
//
// The gateway keeps a rolling window of polled readings in SQLite so the
// REST API can serve history even when InfluxDB is disabled or down.
// Retention is enforced by periodic pruning driven from the meter bridge.
//
// Usage:
//
//	repo := readings.NewSQLiteRepository(db.DB)
//	err := repo.Insert(ctx, &readings.Reading{RecordedAt: time.Now(), ...})
//	latest, err := repo.Latest(ctx)
package readings

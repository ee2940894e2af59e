package readings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 288 // one day at 5 minute polls

	// MaxListLimit caps a single ListRange page. Callers exposing the
	// limit to users should reject values above it rather than let the
	// repository clamp silently.
	MaxListLimit = 5000
)

// SQLiteRepository is the Repository backed by the readings table
// that the create_readings migration sets up.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert persists a reading and fills in its ID. RecordedAt must be
// set; readings without it are rejected with ErrInvalidReading.
func (s *SQLiteRepository) Insert(ctx context.Context, r *Reading) error {
	if r == nil {
		return fmt.Errorf("%w: reading is nil", ErrInvalidReading)
	}
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: recorded_at is required", ErrInvalidReading)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO readings
		 (recorded_at, instant_power_w, current_r_a, current_t_a, cumulative_kwh, cumulative_reverse_kwh)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RecordedAt.UTC().Format(time.RFC3339),
		r.InstantPowerW,
		r.CurrentRA,
		r.CurrentTA,
		r.CumulativeKWh,
		r.CumulativeReverseKWh,
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	r.ID = id

	return nil
}

// Latest returns the newest reading by recorded_at, or ErrNoReadings
// when the store is empty.
func (s *SQLiteRepository) Latest(ctx context.Context) (*Reading, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, recorded_at, instant_power_w, current_r_a, current_t_a, cumulative_kwh, cumulative_reverse_kwh
		 FROM readings
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`,
	)

	r, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoReadings
		}
		return nil, err
	}
	return r, nil
}

// ListRange returns readings within [from, to), oldest first. A limit
// of zero or less means the default page size; anything above the cap
// is clamped. from must be before to or ErrInvalidRange is returned.
func (s *SQLiteRepository) ListRange(ctx context.Context, from, to time.Time, limit int) ([]Reading, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, instant_power_w, current_r_a, current_t_a, cumulative_kwh, cumulative_reverse_kwh
		 FROM readings
		 WHERE recorded_at >= ? AND recorded_at < ?
		 ORDER BY recorded_at ASC, id ASC
		 LIMIT ?`,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	result := make([]Reading, 0, limit)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return result, nil
}

// Prune deletes rows whose recorded_at is older than now minus
// olderThan and reports how many were removed. olderThan must be
// positive.
func (s *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: olderThan must be positive", ErrInvalidRange)
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM readings WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanReading.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanReading scans one readings row.
func scanReading(row rowScanner) (*Reading, error) {
	var r Reading
	var recordedAt string

	err := row.Scan(
		&r.ID,
		&recordedAt,
		&r.InstantPowerW,
		&r.CurrentRA,
		&r.CurrentTA,
		&r.CumulativeKWh,
		&r.CumulativeReverseKWh,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning reading: %w", err)
	}

	r.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}

	return &r, nil
}

package readings

import (
	"context"
	"time"
)

// Reading is a single polled measurement from the smart meter.
//
// Register values (cumulative energy) are stored already scaled by the
// meter's unit (EPC 0xE1) and coefficient (EPC 0xD3), so they are
// directly usable as kWh. Optional fields are pointers because a poll
// can partially fail: the meter may answer the power request but SNA
// the energy request.
type Reading struct {
	// ID is the auto-incremented primary key for the row.
	ID int64 `json:"id"`

	// RecordedAt is the timestamp of the poll (UTC).
	RecordedAt time.Time `json:"recorded_at"`

	// InstantPowerW is the instantaneous power in watts.
	// Negative while exporting to the grid.
	InstantPowerW *float64 `json:"instant_power_w,omitempty"`

	// CurrentRA is the R-phase current in amperes.
	CurrentRA *float64 `json:"current_r_a,omitempty"`

	// CurrentTA is the T-phase current in amperes.
	// Single-phase meters report this as 0.
	CurrentTA *float64 `json:"current_t_a,omitempty"`

	// CumulativeKWh is the import energy register in kWh.
	CumulativeKWh *float64 `json:"cumulative_kwh,omitempty"`

	// CumulativeReverseKWh is the export energy register in kWh.
	CumulativeReverseKWh *float64 `json:"cumulative_reverse_kwh,omitempty"`
}

// Repository stores and retrieves meter readings.
//
// Implementations must be safe for concurrent use and store UTC
// timestamps.
type Repository interface {
	// Insert persists a reading. The RecordedAt field must be set;
	// ID is assigned by the store.
	Insert(ctx context.Context, r *Reading) error

	// Latest returns the most recent reading, or ErrNoReadings if the
	// store is empty.
	Latest(ctx context.Context) (*Reading, error)

	// ListRange returns readings with from <= RecordedAt < to, ordered
	// oldest first. The limit caps the result size (implementation may
	// clamp bounds).
	ListRange(ctx context.Context, from, to time.Time, limit int) ([]Reading, error)

	// Prune deletes readings older than the given duration.
	// It reports how many rows were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

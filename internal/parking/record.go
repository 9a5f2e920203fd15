package parking

import (
	"context"
	"time"
)

// HistoryEntry is the durable record of one completed stay.
type HistoryEntry struct {
	ID              string      `json:"id"`
	VehicleID       string      `json:"car_id"`
	EnterTime       time.Time   `json:"enter_time"`
	ExitTime        time.Time   `json:"exit_time"`
	DurationSeconds float64     `json:"duration_seconds"`
	Fee             float64     `json:"fee"`
	BillingMode     BillingMode `json:"billing_mode"`
	Side            Side        `json:"side"`
	Position        string      `json:"position"`
	MoveCost        int         `json:"move_cost"`
}

// HistoryRecorder persists history entries. Implementations live outside
// the core; the System never calls one while holding its lock.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// HistoryLister is implemented by recorders that can read back what they stored.
type HistoryLister interface {
	List(ctx context.Context, limit, offset int) ([]HistoryEntry, error)
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, HistoryEntry) error { return nil }

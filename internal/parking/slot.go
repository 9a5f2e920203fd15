package parking

import "time"

// LotSlot is a parked vehicle together with its current stack position.
type LotSlot struct {
	Vehicle   Vehicle   `json:"vehicle"`
	Position  string    `json:"position"`
	EntryTime time.Time `json:"entry_time"`
}

func NewLotSlot(vehicle Vehicle, entryTime time.Time) *LotSlot {
	vehicle.EntryTime = entryTime
	return &LotSlot{
		Vehicle:   vehicle,
		EntryTime: entryTime,
	}
}

// ParkedFor is the time the vehicle has spent in the lot as of now.
func (s LotSlot) ParkedFor(now time.Time) time.Duration {
	return now.Sub(s.EntryTime)
}

// QueueItem is a vehicle waiting on one lane of the side road.
type QueueItem struct {
	Vehicle     Vehicle   `json:"vehicle"`
	ArrivalTime time.Time `json:"arrival_time"`
	Position    string    `json:"position"`
}

func (q QueueItem) WaitedFor(now time.Time) time.Duration {
	return now.Sub(q.ArrivalTime)
}

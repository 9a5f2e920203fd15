package parking

import "time"

// DualLot is a lot with an exit at each end. Each end is its own stack;
// arrivals go to whichever end currently holds fewer vehicles.
type DualLot struct {
	capacity int
	occupied int
	north    *SingleSideLot
	south    *SingleSideLot
}

type Location struct {
	Side  Side    `json:"side"`
	Index int     `json:"index"`
	Slot  LotSlot `json:"slot"`
}

// Departure is one vehicle leaving the lot. Duration is carried for
// callers; the wire form is DurationSeconds, like history entries.
type Departure struct {
	Slot            LotSlot       `json:"slot"`
	Side            Side          `json:"side"`
	ExitTime        time.Time     `json:"exit_time"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
	MoveCost        int           `json:"move_cost"`
	Displaced       []Vehicle     `json:"displaced,omitempty"`
}

type LotStatus struct {
	North    []LotSlot `json:"north"`
	South    []LotSlot `json:"south"`
	Occupied int       `json:"occupied"`
	Capacity int       `json:"capacity"`
}

func NewDualLot(capacity int) *DualLot {
	// The per-side stacks share the whole capacity; the lot-wide bound is
	// enforced here through occupied.
	return &DualLot{
		capacity: capacity,
		north:    NewSingleSideLot(North, capacity),
		south:    NewSingleSideLot(South, capacity),
	}
}

func (dl *DualLot) Capacity() int {
	return dl.capacity
}

func (dl *DualLot) Occupied() int {
	return dl.occupied
}

func (dl *DualLot) IsFull() bool {
	return dl.occupied >= dl.capacity
}

func (dl *DualLot) Count(side Side) int {
	return dl.stack(side).Len()
}

func (dl *DualLot) stack(side Side) *SingleSideLot {
	if side == North {
		return dl.north
	}
	return dl.south
}

// Enter parks the vehicle at the less loaded end, north on a tie, and
// returns its position label.
func (dl *DualLot) Enter(vehicle Vehicle, now time.Time) (string, error) {
	if dl.IsFull() {
		return "", ErrLotFull
	}

	side := North
	if dl.north.Len() > dl.south.Len() {
		side = South
	}

	slot := NewLotSlot(vehicle, now)
	if !dl.stack(side).Arrive(slot) {
		return "", ErrLotFull
	}
	dl.occupied++

	return slot.Position, nil
}

func (dl *DualLot) Find(vehicleID string) (Location, error) {
	for _, side := range []Side{North, South} {
		stack := dl.stack(side)
		if i := stack.indexOf(vehicleID); i >= 0 {
			return Location{Side: side, Index: i, Slot: *stack.stack[i]}, nil
		}
	}
	return Location{}, ErrNotFound
}

func (dl *DualLot) Contains(vehicleID string) bool {
	_, err := dl.Find(vehicleID)
	return err == nil
}

// Leave removes the vehicle through its own side's exit. MoveCost counts
// the vehicles that had to give way; it is reported, never charged.
func (dl *DualLot) Leave(vehicleID string, now time.Time) (Departure, error) {
	loc, err := dl.Find(vehicleID)
	if err != nil {
		return Departure{}, err
	}

	stack := dl.stack(loc.Side)
	moveCost := stack.Len() - loc.Index - 1

	slot, displaced := stack.removeAt(loc.Index)
	if slot == nil {
		return Departure{}, ErrNotFound
	}
	dl.occupied--

	stay := now.Sub(slot.EntryTime)
	return Departure{
		Slot:            *slot,
		Side:            loc.Side,
		ExitTime:        now,
		Duration:        stay,
		DurationSeconds: stay.Seconds(),
		MoveCost:        moveCost,
		Displaced:       displaced,
	}, nil
}

func (dl *DualLot) Status() LotStatus {
	return LotStatus{
		North:    dl.north.snapshot(),
		South:    dl.south.snapshot(),
		Occupied: dl.occupied,
		Capacity: dl.capacity,
	}
}

func (dl *DualLot) OccupancyRate() float64 {
	if dl.capacity == 0 {
		return 0
	}
	return float64(dl.occupied) / float64(dl.capacity) * 100
}

// transfer moves the top vehicle of from onto the top of the other side.
func (dl *DualLot) transfer(from Side) (LotSlot, bool) {
	slot := dl.stack(from).pop()
	if slot == nil {
		return LotSlot{}, false
	}
	dl.stack(from.Opposite()).push(slot)
	return *slot, true
}

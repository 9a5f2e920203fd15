package parking

import "time"

// SingleSideLot is one side of the lot: a dead-end lane where the last
// vehicle in is the first that can drive out. Reaching a buried vehicle
// means the ones above it give way and are pushed back afterwards.
type SingleSideLot struct {
	side     Side
	capacity int
	stack    []*LotSlot
}

// VehicleState is the (id, entry time) pair reported by CurrentState.
type VehicleState struct {
	ID        string    `json:"id"`
	EntryTime time.Time `json:"entry_time"`
}

func NewSingleSideLot(side Side, capacity int) *SingleSideLot {
	return &SingleSideLot{
		side:     side,
		capacity: capacity,
		stack:    make([]*LotSlot, 0, capacity),
	}
}

func (l *SingleSideLot) Side() Side {
	return l.side
}

func (l *SingleSideLot) Len() int {
	return len(l.stack)
}

func (l *SingleSideLot) IsFull() bool {
	return len(l.stack) >= l.capacity
}

// Arrive pushes the slot on top of the stack and labels it.
func (l *SingleSideLot) Arrive(slot *LotSlot) bool {
	if l.IsFull() {
		return false
	}
	l.push(slot)
	return true
}

// Depart removes the vehicle with the given id. Displaced vehicles are
// returned top-most first; they are back in their original order when
// Depart returns. An unknown id leaves the stack untouched and returns nil.
func (l *SingleSideLot) Depart(vehicleID string) (*LotSlot, []Vehicle) {
	return l.giveWay(func(slot *LotSlot, _ int) bool {
		return slot.Vehicle.ID == vehicleID
	})
}

func (l *SingleSideLot) removeAt(index int) (*LotSlot, []Vehicle) {
	if index < 0 || index >= len(l.stack) {
		return nil, nil
	}
	return l.giveWay(func(_ *LotSlot, at int) bool {
		return at == index
	})
}

func (l *SingleSideLot) giveWay(match func(slot *LotSlot, index int) bool) (*LotSlot, []Vehicle) {
	var (
		holding []*LotSlot
		target  *LotSlot
	)

	for len(l.stack) > 0 {
		index := len(l.stack) - 1
		top := l.pop()
		if match(top, index) {
			target = top
			break
		}
		holding = append(holding, top)
	}

	var displaced []Vehicle
	if target != nil && len(holding) > 0 {
		displaced = make([]Vehicle, len(holding))
		for i, slot := range holding {
			displaced[i] = slot.Vehicle
		}
	}

	for i := len(holding) - 1; i >= 0; i-- {
		l.stack = append(l.stack, holding[i])
	}

	if target == nil {
		return nil, nil
	}

	l.relabel()
	return target, displaced
}

func (l *SingleSideLot) indexOf(vehicleID string) int {
	for i, slot := range l.stack {
		if slot.Vehicle.ID == vehicleID {
			return i
		}
	}
	return -1
}

func (l *SingleSideLot) push(slot *LotSlot) {
	slot.Position = slotLabel(l.side, len(l.stack))
	l.stack = append(l.stack, slot)
}

func (l *SingleSideLot) pop() *LotSlot {
	if len(l.stack) == 0 {
		return nil
	}
	top := l.stack[len(l.stack)-1]
	l.stack[len(l.stack)-1] = nil
	l.stack = l.stack[:len(l.stack)-1]
	return top
}

func (l *SingleSideLot) relabel() {
	for i, slot := range l.stack {
		slot.Position = slotLabel(l.side, i)
	}
}

// CurrentState lists parked vehicles bottom (deepest) to top.
func (l *SingleSideLot) CurrentState() []VehicleState {
	state := make([]VehicleState, len(l.stack))
	for i, slot := range l.stack {
		state[i] = VehicleState{ID: slot.Vehicle.ID, EntryTime: slot.EntryTime}
	}
	return state
}

func (l *SingleSideLot) snapshot() []LotSlot {
	slots := make([]LotSlot, len(l.stack))
	for i, slot := range l.stack {
		slots[i] = *slot
	}
	return slots
}

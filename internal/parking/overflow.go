package parking

import "time"

// OverflowQueue is the side road: two FIFO lanes sharing one capacity.
type OverflowQueue struct {
	capacity int
	north    []*QueueItem
	south    []*QueueItem
}

type QueueStatus struct {
	North    []QueueItem `json:"north"`
	South    []QueueItem `json:"south"`
	Total    int         `json:"total"`
	Capacity int         `json:"capacity"`
}

// SideRoadCapacity totals the two lanes. A lane left at zero holds
// perLane vehicles, so with no lane overrides the side road is perLane*2.
func SideRoadCapacity(north, south, perLane int) int {
	if north == 0 {
		north = perLane
	}
	if south == 0 {
		south = perLane
	}
	return north + south
}

func NewOverflowQueue(capacity int) *OverflowQueue {
	return &OverflowQueue{capacity: capacity}
}

func (q *OverflowQueue) Capacity() int {
	return q.capacity
}

func (q *OverflowQueue) Len() int {
	return len(q.north) + len(q.south)
}

func (q *OverflowQueue) IsFull() bool {
	return q.Len() >= q.capacity
}

func (q *OverflowQueue) lane(side Side) *[]*QueueItem {
	if side == North {
		return &q.north
	}
	return &q.south
}

// Enqueue appends the vehicle to the shorter lane, north on a tie.
func (q *OverflowQueue) Enqueue(vehicle Vehicle, arrival time.Time) (string, error) {
	if q.IsFull() {
		return "", ErrSideRoadFull
	}

	side := North
	if len(q.north) > len(q.south) {
		side = South
	}

	lane := q.lane(side)
	item := &QueueItem{
		Vehicle:     vehicle,
		ArrivalTime: arrival,
		Position:    laneLabel(side, len(*lane)),
	}
	*lane = append(*lane, item)

	return item.Position, nil
}

// Dequeue pops the head of the preferred lane when it has one, otherwise
// north, otherwise south. It returns nil when both lanes are empty.
func (q *OverflowQueue) Dequeue(preferred *Side) *QueueItem {
	order := []Side{North, South}
	if preferred != nil {
		order = append([]Side{*preferred}, order...)
	}

	for _, side := range order {
		lane := q.lane(side)
		if len(*lane) == 0 {
			continue
		}
		head := (*lane)[0]
		(*lane)[0] = nil
		*lane = (*lane)[1:]
		for i, item := range *lane {
			item.Position = laneLabel(side, i)
		}
		return head
	}
	return nil
}

func (q *OverflowQueue) Find(vehicleID string) (Side, QueueItem, bool) {
	for _, side := range []Side{North, South} {
		for _, item := range *q.lane(side) {
			if item.Vehicle.ID == vehicleID {
				return side, *item, true
			}
		}
	}
	return "", QueueItem{}, false
}

func (q *OverflowQueue) Contains(vehicleID string) bool {
	_, _, ok := q.Find(vehicleID)
	return ok
}

// WaitingCount counts one lane, or both when side is nil.
func (q *OverflowQueue) WaitingCount(side *Side) int {
	if side == nil {
		return q.Len()
	}
	return len(*q.lane(*side))
}

func (q *OverflowQueue) Status() QueueStatus {
	return QueueStatus{
		North:    copyItems(q.north),
		South:    copyItems(q.south),
		Total:    q.Len(),
		Capacity: q.capacity,
	}
}

func copyItems(lane []*QueueItem) []QueueItem {
	items := make([]QueueItem, len(lane))
	for i, item := range lane {
		items[i] = *item
	}
	return items
}

package parking

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeParked     Outcome = "PARKED"
	OutcomeInSideRoad Outcome = "IN_SIDE_ROAD"
	OutcomeRejected   Outcome = "REJECTED"
	OutcomeExists     Outcome = "EXISTS"
	OutcomeSuccess    Outcome = "SUCCESS"
	OutcomeFailure    Outcome = "FAILURE"
	OutcomeError      Outcome = "ERROR"
)

// Settings sizes a System. WaitingCapacity is the side road total;
// NorthLane and SouthLane are the per-lane overrides it was derived from,
// kept so Manager.Rebuild can size a new side road the same way.
type Settings struct {
	Capacity        int
	WaitingCapacity int
	NorthLane       int
	SouthLane       int
	BillingMode     BillingMode
	Rates           Rates
	Optimizer       OptimizerSettings
}

type Option func(*System)

// WithClock replaces time.Now, mainly so tests can drive the cooldown.
func WithClock(now func() time.Time) Option {
	return func(s *System) {
		s.now = now
	}
}

// System ties the dual lot, the side road, billing and the optimizer
// together. One mutex covers all of them for the whole of each call.
type System struct {
	mu          sync.Mutex
	lot         *DualLot
	queue       *OverflowQueue
	optimizer   *ExitOptimizer
	billingMode BillingMode
	rates       Rates
	now         func() time.Time
}

type EnterResult struct {
	Outcome   Outcome   `json:"outcome"`
	VehicleID string    `json:"vehicle_id"`
	Position  string    `json:"position,omitempty"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
}

type Backfill struct {
	Vehicle       Vehicle       `json:"vehicle"`
	FromPosition  string        `json:"from_position"`
	Position      string        `json:"position"`
	ArrivalTime   time.Time     `json:"arrival_time"`
	Waited        time.Duration `json:"-"`
	WaitedSeconds float64       `json:"waited_seconds"`
}

type LeaveResult struct {
	Outcome    Outcome      `json:"outcome"`
	Departure  Departure    `json:"departed"`
	Fee        float64      `json:"fee"`
	History    HistoryEntry `json:"history"`
	Backfilled *Backfill    `json:"entered,omitempty"`
	Message    string       `json:"message"`
}

type Placement struct {
	VehicleID string    `json:"vehicle_id"`
	InLot     bool      `json:"in_lot"`
	Side      Side      `json:"side"`
	Index     int       `json:"index"`
	Position  string    `json:"position"`
	Since     time.Time `json:"since"`
}

type Status struct {
	North           []LotSlot   `json:"north"`
	South           []LotSlot   `json:"south"`
	NorthQueue      []QueueItem `json:"north_queue"`
	SouthQueue      []QueueItem `json:"south_queue"`
	Occupied        int         `json:"occupied"`
	Capacity        int         `json:"capacity"`
	Waiting         int         `json:"waiting"`
	WaitingCapacity int         `json:"waiting_capacity"`
	OccupancyRate   float64     `json:"occupancy_rate"`
	BillingMode     BillingMode `json:"billing_mode"`
	Rates           Rates       `json:"rates"`
	At              time.Time   `json:"at"`
}

func NewSystem(settings Settings, opts ...Option) *System {
	lot := NewDualLot(settings.Capacity)
	queue := NewOverflowQueue(settings.WaitingCapacity)

	s := &System{
		lot:         lot,
		queue:       queue,
		optimizer:   NewExitOptimizer(lot, queue, settings.Optimizer),
		billingMode: settings.BillingMode,
		rates:       settings.Rates,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *System) exists(vehicleID string) bool {
	return s.lot.Contains(vehicleID) || s.queue.Contains(vehicleID)
}

// Enter admits a vehicle: into the lot if there is room, otherwise onto
// the side road, otherwise it is turned away.
func (s *System) Enter(vehicleID string) (EnterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	vehicleID = strings.TrimSpace(vehicleID)
	result := EnterResult{VehicleID: vehicleID, Time: now}

	if vehicleID == "" {
		result.Outcome = OutcomeError
		result.Message = ErrInvalidVehicleID.Error()
		return result, ErrInvalidVehicleID
	}

	if s.exists(vehicleID) {
		result.Outcome = OutcomeExists
		result.Message = fmt.Sprintf("vehicle %s is already in the system", vehicleID)
		return result, ErrDuplicateVehicle
	}

	vehicle := NewVehicle(vehicleID, now)

	if position, err := s.lot.Enter(*vehicle, now); err == nil {
		result.Outcome = OutcomeParked
		result.Position = position
		result.Message = fmt.Sprintf("vehicle %s parked at %s", vehicleID, position)
		return result, nil
	}

	if position, err := s.queue.Enqueue(*vehicle, now); err == nil {
		result.Outcome = OutcomeInSideRoad
		result.Position = position
		result.Message = fmt.Sprintf("parking lot is full, vehicle %s waiting at %s", vehicleID, position)
		return result, nil
	}

	result.Outcome = OutcomeRejected
	result.Message = ErrCapacityExceeded.Error()
	return result, ErrCapacityExceeded
}

// Leave takes a parked vehicle out, prices the stay and backfills the
// freed space from the lane on the same side. The backfilled vehicle's
// parking clock starts now.
func (s *System) Leave(vehicleID string) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	vehicleID = strings.TrimSpace(vehicleID)

	departure, err := s.lot.Leave(vehicleID, now)
	if err != nil {
		return LeaveResult{
			Outcome: OutcomeFailure,
			Message: fmt.Sprintf("vehicle %s is not parked here", vehicleID),
		}, err
	}

	seconds := departure.Duration.Seconds()
	fee := Fee(seconds, s.billingMode, s.rates)

	result := LeaveResult{
		Outcome:   OutcomeSuccess,
		Departure: departure,
		Fee:       fee,
		History: HistoryEntry{
			ID:              uuid.NewString(),
			VehicleID:       departure.Slot.Vehicle.ID,
			EnterTime:       departure.Slot.EntryTime,
			ExitTime:        now,
			DurationSeconds: seconds,
			Fee:             fee,
			BillingMode:     s.billingMode,
			Side:            departure.Side,
			Position:        departure.Slot.Position,
			MoveCost:        departure.MoveCost,
		},
		Message: fmt.Sprintf("vehicle %s left after %s, fee %.2f", vehicleID, FormatDuration(seconds), fee),
	}

	side := departure.Side
	if next := s.queue.Dequeue(&side); next != nil {
		vehicle := next.Vehicle
		vehicle.EntryTime = now
		if position, err := s.lot.Enter(vehicle, now); err == nil {
			waited := next.WaitedFor(now)
			result.Backfilled = &Backfill{
				Vehicle:       vehicle,
				FromPosition:  next.Position,
				Position:      position,
				ArrivalTime:   next.ArrivalTime,
				Waited:        waited,
				WaitedSeconds: waited.Seconds(),
			}
		}
	}

	return result, nil
}

func (s *System) OptimalExit(vehicleID string) (ExitRecommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.optimizer.FindOptimalPath(strings.TrimSpace(vehicleID))
}

func (s *System) Rebalance() (RebalanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.optimizer.Rebalance(s.now())
}

// Locate reports where a vehicle is, in the lot or on the side road.
func (s *System) Locate(vehicleID string) (Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicleID = strings.TrimSpace(vehicleID)

	if loc, err := s.lot.Find(vehicleID); err == nil {
		return Placement{
			VehicleID: vehicleID,
			InLot:     true,
			Side:      loc.Side,
			Index:     loc.Index,
			Position:  loc.Slot.Position,
			Since:     loc.Slot.EntryTime,
		}, nil
	}

	if side, item, ok := s.queue.Find(vehicleID); ok {
		return Placement{
			VehicleID: vehicleID,
			Side:      side,
			Position:  item.Position,
			Since:     item.ArrivalTime,
		}, nil
	}

	return Placement{}, ErrNotFound
}

func (s *System) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot := s.lot.Status()
	queue := s.queue.Status()

	return Status{
		North:           lot.North,
		South:           lot.South,
		NorthQueue:      queue.North,
		SouthQueue:      queue.South,
		Occupied:        lot.Occupied,
		Capacity:        lot.Capacity,
		Waiting:         queue.Total,
		WaitingCapacity: queue.Capacity,
		OccupancyRate:   s.lot.OccupancyRate(),
		BillingMode:     s.billingMode,
		Rates:           s.rates,
		At:              s.now(),
	}
}

func (s *System) MoveHistory() []MoveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.optimizer.History()
}

// SetBilling switches the billing mode and sets that mode's rate.
func (s *System) SetBilling(mode BillingMode, amount float64) error {
	if _, err := ParseBillingMode(string(mode)); err != nil {
		return err
	}
	if amount < 0 {
		return fmt.Errorf("billing amount must not be negative, got %v", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.billingMode = mode
	s.rates = s.rates.With(mode, amount)
	return nil
}

func (s *System) Billing() (BillingMode, Rates) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.billingMode, s.rates
}

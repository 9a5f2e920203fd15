package parking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	sameSideCost    = 1.0
	giveWayCost     = 0.8
	crossSideCost   = 1.2
	laneWaitingCost = 0.2
)

type OptimizerSettings struct {
	Threshold float64
	Cooldown  time.Duration
	MaxMoves  int
}

func DefaultOptimizerSettings() OptimizerSettings {
	return OptimizerSettings{
		Threshold: 0.3,
		Cooldown:  30 * time.Second,
		MaxMoves:  3,
	}
}

type MoveRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	VehicleID string    `json:"vehicle_id"`
	From      Side      `json:"from_side"`
	To        Side      `json:"to_side"`
	Position  string    `json:"position"`
}

type ExitRecommendation struct {
	VehicleID   string  `json:"vehicle_id"`
	CurrentSide Side    `json:"current_side"`
	Index       int     `json:"index"`
	Side        Side    `json:"exit_side"`
	Cost        float64 `json:"cost"`
	NorthCost   float64 `json:"north_cost"`
	SouthCost   float64 `json:"south_cost"`
}

type RebalanceResult struct {
	Rebalanced bool         `json:"rebalanced"`
	Moved      int          `json:"moved"`
	Moves      []MoveRecord `json:"moves,omitempty"`
	Imbalance  float64      `json:"imbalance"`
	Message    string       `json:"message"`
}

// ExitOptimizer recommends exits and evens out the two sides of a DualLot.
type ExitOptimizer struct {
	lot          *DualLot
	queue        *OverflowQueue
	settings     OptimizerSettings
	lastOptimize time.Time
	history      []MoveRecord
}

func NewExitOptimizer(lot *DualLot, queue *OverflowQueue, settings OptimizerSettings) *ExitOptimizer {
	return &ExitOptimizer{
		lot:      lot,
		queue:    queue,
		settings: settings,
	}
}

// FindOptimalPath prices leaving through each exit and picks the cheaper
// one. North wins ties.
func (o *ExitOptimizer) FindOptimalPath(vehicleID string) (ExitRecommendation, error) {
	loc, err := o.lot.Find(vehicleID)
	if err != nil {
		return ExitRecommendation{}, err
	}

	north, south := North, South
	northCost := o.exitCost(North, loc.Side, loc.Index) + float64(o.queue.WaitingCount(&north))*laneWaitingCost
	southCost := o.exitCost(South, loc.Side, loc.Index) + float64(o.queue.WaitingCount(&south))*laneWaitingCost

	rec := ExitRecommendation{
		VehicleID:   vehicleID,
		CurrentSide: loc.Side,
		Index:       loc.Index,
		NorthCost:   northCost,
		SouthCost:   southCost,
	}
	if northCost <= southCost {
		rec.Side, rec.Cost = North, northCost
	} else {
		rec.Side, rec.Cost = South, southCost
	}
	return rec, nil
}

func (o *ExitOptimizer) exitCost(target, current Side, index int) float64 {
	if target == current {
		return float64(index) * sameSideCost
	}
	// Give way to everything above, then merge behind the other side.
	return float64(o.lot.Count(current)-index)*giveWayCost + float64(o.lot.Count(current.Opposite()))*crossSideCost
}

// Rebalance moves vehicles from the top of the fuller side to the top of
// the emptier one when the sides differ by more than the threshold.
// The cooldown clock restarts on every call that gets past the rate check,
// including calls that find the lot balanced.
func (o *ExitOptimizer) Rebalance(now time.Time) (RebalanceResult, error) {
	if !o.lastOptimize.IsZero() && now.Sub(o.lastOptimize) < o.settings.Cooldown {
		return RebalanceResult{Message: "rebalance requested too frequently, try again later"}, ErrRateLimited
	}
	o.lastOptimize = now

	northCount, southCount := o.lot.Count(North), o.lot.Count(South)
	diff := northCount - southCount
	if diff < 0 {
		diff = -diff
	}

	var imbalance float64
	if o.lot.Capacity() > 0 {
		imbalance = float64(diff) / float64(o.lot.Capacity())
	}

	if imbalance <= o.settings.Threshold {
		return RebalanceResult{Imbalance: imbalance, Message: "system balanced, no action needed"}, nil
	}

	from := South
	if northCount > southCount {
		from = North
	}

	maxMoves := min(o.settings.MaxMoves, diff/2)
	result := RebalanceResult{Rebalanced: true, Imbalance: imbalance}

	for range maxMoves {
		slot, ok := o.lot.transfer(from)
		if !ok {
			break
		}
		record := MoveRecord{
			ID:        uuid.NewString(),
			Timestamp: now,
			VehicleID: slot.Vehicle.ID,
			From:      from,
			To:        from.Opposite(),
			Position:  slot.Position,
		}
		o.history = append(o.history, record)
		result.Moves = append(result.Moves, record)
		result.Moved++
	}

	result.Message = fmt.Sprintf("rebalance complete, moved %d vehicles", result.Moved)
	return result, nil
}

func (o *ExitOptimizer) LastOptimized() time.Time {
	return o.lastOptimize
}

func (o *ExitOptimizer) History() []MoveRecord {
	history := make([]MoveRecord, len(o.history))
	copy(history, o.history)
	return history
}

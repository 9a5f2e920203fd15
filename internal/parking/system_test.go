package parking

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSettings(capacity, waiting int) Settings {
	return Settings{
		Capacity:        capacity,
		WaitingCapacity: waiting,
		BillingMode:     PerMinute,
		Rates:           Rates{PerMinute: 1, PerHour: 30, Fixed: 50},
		Optimizer:       DefaultOptimizerSettings(),
	}
}

func newTestSystem(capacity, waiting int) (*System, *fakeClock) {
	clock := newFakeClock()
	return NewSystem(testSettings(capacity, waiting), WithClock(clock.Now)), clock
}

func TestSystemEnterRespectsCapacity(t *testing.T) {
	s, _ := newTestSystem(4, 2)

	var outcomes []Outcome
	for i := range 7 {
		result, _ := s.Enter(fmt.Sprintf("V%d", i))
		outcomes = append(outcomes, result.Outcome)
		assert.LessOrEqual(t, s.Status().Occupied, 4)
	}

	assert.Equal(t, []Outcome{
		OutcomeParked, OutcomeParked, OutcomeParked, OutcomeParked,
		OutcomeInSideRoad, OutcomeInSideRoad, OutcomeRejected,
	}, outcomes)

	result, err := s.Enter("V9")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, OutcomeRejected, result.Outcome)
}

func TestSystemEnterRejectsDuplicates(t *testing.T) {
	s, _ := newTestSystem(1, 2)

	_, err := s.Enter("A")
	require.NoError(t, err)
	result, err := s.Enter("B")
	require.NoError(t, err)
	require.Equal(t, OutcomeInSideRoad, result.Outcome)

	for _, id := range []string{"A", "B", " A "} {
		result, err := s.Enter(id)
		assert.ErrorIs(t, err, ErrDuplicateVehicle, id)
		assert.Equal(t, OutcomeExists, result.Outcome, id)
	}

	status := s.Status()
	assert.Equal(t, 1, status.Occupied)
	assert.Equal(t, 1, status.Waiting)
}

func TestSystemEnterRequiresID(t *testing.T) {
	s, _ := newTestSystem(1, 1)

	result, err := s.Enter("   ")
	assert.ErrorIs(t, err, ErrInvalidVehicleID)
	assert.Equal(t, OutcomeError, result.Outcome)
}

func TestSystemEnterNorthOnTie(t *testing.T) {
	s, _ := newTestSystem(4, 0)

	first, err := s.Enter("A")
	require.NoError(t, err)
	second, err := s.Enter("B")
	require.NoError(t, err)
	third, err := s.Enter("C")
	require.NoError(t, err)

	assert.Equal(t, "N1", first.Position)
	assert.Equal(t, "S1", second.Position)
	assert.Equal(t, "N2", third.Position)
}

func TestSystemLeaveBackfillsFromQueue(t *testing.T) {
	s, clock := newTestSystem(2, 2)

	a, err := s.Enter("A")
	require.NoError(t, err)
	b, err := s.Enter("B")
	require.NoError(t, err)
	c, err := s.Enter("C")
	require.NoError(t, err)

	assert.Equal(t, "N1", a.Position)
	assert.Equal(t, "S1", b.Position)
	assert.Equal(t, OutcomeInSideRoad, c.Outcome)
	assert.Equal(t, "NQ1", c.Position)

	clock.Advance(time.Hour)

	result, err := s.Leave("A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "A", result.Departure.Slot.Vehicle.ID)
	assert.Equal(t, time.Hour, result.Departure.Duration)
	assert.InDelta(t, 3600.0, result.Departure.DurationSeconds, 1e-9)
	assert.InDelta(t, 60.0, result.Fee, 1e-9)

	require.NotNil(t, result.Backfilled)
	assert.Equal(t, "C", result.Backfilled.Vehicle.ID)
	assert.Equal(t, "NQ1", result.Backfilled.FromPosition)
	assert.Equal(t, "N1", result.Backfilled.Position)
	assert.Equal(t, time.Hour, result.Backfilled.Waited)
	assert.InDelta(t, 3600.0, result.Backfilled.WaitedSeconds, 1e-9)

	status := s.Status()
	assert.Equal(t, 0, status.Waiting)
	assert.Equal(t, 2, status.Occupied)
	require.Len(t, status.North, 1)
	assert.True(t, status.North[0].EntryTime.Equal(clock.Now()), "backfilled vehicle starts a fresh stay")
	assert.True(t, status.North[0].Vehicle.EntryTime.Equal(clock.Now()))
}

func TestLeaveResultEncodesSeconds(t *testing.T) {
	s, clock := newTestSystem(2, 2)

	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Enter(id)
		require.NoError(t, err)
	}
	clock.Advance(90 * time.Minute)

	result, err := s.Leave("A")
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded struct {
		Departed   map[string]any `json:"departed"`
		Backfilled map[string]any `json:"entered"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, 5400.0, decoded.Departed["duration_seconds"])
	assert.NotContains(t, decoded.Departed, "duration")
	require.NotNil(t, decoded.Backfilled)
	assert.Equal(t, 5400.0, decoded.Backfilled["waited_seconds"])
	assert.NotContains(t, decoded.Backfilled, "waited")
}

func TestSystemLeaveBackfillPrefersVacatedSide(t *testing.T) {
	s, _ := newTestSystem(2, 4)
	for _, id := range []string{"A", "B", "C", "D"} {
		_, err := s.Enter(id)
		require.NoError(t, err)
	}
	// lot: A N1, B S1; lanes: C NQ1, D SQ1

	result, err := s.Leave("B")
	require.NoError(t, err)
	require.NotNil(t, result.Backfilled)
	assert.Equal(t, "D", result.Backfilled.Vehicle.ID)
	assert.Equal(t, "S1", result.Backfilled.Position)

	placement, err := s.Locate("C")
	require.NoError(t, err)
	assert.False(t, placement.InLot)
	assert.Equal(t, "NQ1", placement.Position)
}

func TestSystemLeaveWithoutQueue(t *testing.T) {
	s, _ := newTestSystem(2, 2)
	_, err := s.Enter("A")
	require.NoError(t, err)

	result, err := s.Leave("A")
	require.NoError(t, err)
	assert.Nil(t, result.Backfilled)
	assert.Equal(t, 0, s.Status().Occupied)
}

func TestSystemLeaveUnknown(t *testing.T) {
	s, _ := newTestSystem(2, 2)

	result, err := s.Leave("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, OutcomeFailure, result.Outcome)
}

func TestSystemLeaveQueuedVehicleIsNotFound(t *testing.T) {
	s, _ := newTestSystem(1, 1)
	_, err := s.Enter("A")
	require.NoError(t, err)
	_, err = s.Enter("B")
	require.NoError(t, err)

	_, err = s.Leave("B")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Status().Waiting)
}

func TestSystemLeaveHistoryEntry(t *testing.T) {
	s, clock := newTestSystem(4, 0)
	for _, id := range []string{"A", "B", "C"} {
		_, err := s.Enter(id)
		require.NoError(t, err)
	}
	clock.Advance(90 * time.Second)

	result, err := s.Leave("A")
	require.NoError(t, err)

	entry := result.History
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "A", entry.VehicleID)
	assert.True(t, entry.EnterTime.Equal(baseTime))
	assert.True(t, entry.ExitTime.Equal(clock.Now()))
	assert.InDelta(t, 90.0, entry.DurationSeconds, 1e-9)
	assert.InDelta(t, 1.5, entry.Fee, 1e-9)
	assert.Equal(t, PerMinute, entry.BillingMode)
	assert.Equal(t, North, entry.Side)
	assert.Equal(t, "N1", entry.Position)
	assert.Equal(t, 1, entry.MoveCost)
}

func TestSystemGiveWayPreservesOrder(t *testing.T) {
	s, _ := newTestSystem(10, 0)
	for i := range 8 {
		_, err := s.Enter(fmt.Sprintf("V%d", i))
		require.NoError(t, err)
	}
	// north: V0 V2 V4 V6

	result, err := s.Leave("V2")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Departure.MoveCost)

	status := s.Status()
	var north []string
	for _, slot := range status.North {
		north = append(north, slot.Position+":"+slot.Vehicle.ID)
	}
	assert.Equal(t, []string{"N1:V0", "N2:V4", "N3:V6"}, north)
}

func TestSystemRebalanceScenario(t *testing.T) {
	s, clock := newTestSystem(6, 0)
	s.mu.Lock()
	stackSide(s.lot, North, "A", "B", "C")
	s.mu.Unlock()

	result, err := s.Rebalance()
	require.NoError(t, err)
	assert.True(t, result.Rebalanced)
	assert.Equal(t, 1, result.Moved)

	clock.Advance(10 * time.Second)
	_, err = s.Rebalance()
	assert.ErrorIs(t, err, ErrRateLimited)

	require.Len(t, s.MoveHistory(), 1)

	status := s.Status()
	assert.Len(t, status.North, 2)
	assert.Len(t, status.South, 1)
}

func TestSystemOptimalExit(t *testing.T) {
	s, _ := newTestSystem(6, 0)
	for _, id := range []string{"A", "B"} {
		_, err := s.Enter(id)
		require.NoError(t, err)
	}

	rec, err := s.OptimalExit("B")
	require.NoError(t, err)
	assert.Equal(t, South, rec.Side)

	_, err = s.OptimalExit("Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemLocate(t *testing.T) {
	s, _ := newTestSystem(1, 1)
	_, err := s.Enter("A")
	require.NoError(t, err)

	placement, err := s.Locate("A")
	require.NoError(t, err)
	assert.True(t, placement.InLot)
	assert.Equal(t, North, placement.Side)
	assert.Equal(t, "N1", placement.Position)

	_, err = s.Locate("Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemSetBilling(t *testing.T) {
	s, clock := newTestSystem(2, 0)

	require.NoError(t, s.SetBilling(Fixed, 20))
	mode, rates := s.Billing()
	assert.Equal(t, Fixed, mode)
	assert.Equal(t, 20.0, rates.Fixed)
	assert.Equal(t, 1.0, rates.PerMinute)

	_, err := s.Enter("A")
	require.NoError(t, err)
	clock.Advance(5 * time.Hour)
	result, err := s.Leave("A")
	require.NoError(t, err)
	assert.Equal(t, 20.0, result.Fee)

	assert.ErrorIs(t, s.SetBilling(BillingMode("hourly"), 1), ErrUnknownBillingMode)
	assert.Error(t, s.SetBilling(PerHour, -1))
}

func TestSystemConcurrentEnter(t *testing.T) {
	s := NewSystem(testSettings(20, 10))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, _ := s.Enter(fmt.Sprintf("V%02d", i))
			mu.Lock()
			outcomes[result.Outcome]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, outcomes[OutcomeParked])
	assert.Equal(t, 10, outcomes[OutcomeInSideRoad])
	assert.Equal(t, 20, outcomes[OutcomeRejected])

	status := s.Status()
	assert.Equal(t, status.Occupied, len(status.North)+len(status.South))
	assert.Equal(t, 10, len(status.North))
	assert.Equal(t, 10, len(status.South))
}

package parking

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns the live system. The HTTP admin route and the shell's
// create command rebuild it with new capacities. Every other operation
// goes through the Manager and holds the read lock for its whole call,
// so nothing lands in a system that Rebuild has already retired.
type Manager struct {
	mu        sync.RWMutex
	current   *InstrumentedSystem
	settings  Settings
	telemetry *TelemetryProvider
	recorder  HistoryRecorder
	opts      []Option
}

var _ Rebalancer = (*Manager)(nil)

func NewManager(settings Settings, telemetry *TelemetryProvider, recorder HistoryRecorder, opts ...Option) (*Manager, error) {
	system, err := NewInstrumentedSystem(settings, telemetry, recorder, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{
		current:   system,
		settings:  settings,
		telemetry: telemetry,
		recorder:  recorder,
		opts:      opts,
	}, nil
}

// Current returns the live system. Callers that act on it should use
// the Manager methods instead; the pointer may be retired at any time.
func (m *Manager) Current() *InstrumentedSystem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Core returns the uninstrumented system, for the Prometheus collector.
func (m *Manager) Core() *System {
	return m.Current().System
}

func (m *Manager) Recorder() HistoryRecorder {
	return m.recorder
}

func (m *Manager) Enter(ctx context.Context, vehicleID string) (EnterResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Enter(ctx, vehicleID)
}

func (m *Manager) Leave(ctx context.Context, vehicleID string) (LeaveResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Leave(ctx, vehicleID)
}

func (m *Manager) OptimalExit(ctx context.Context, vehicleID string) (ExitRecommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.OptimalExit(ctx, vehicleID)
}

// Rebalance lets the Manager stand in for a system in AutoRebalancer,
// so background passes always hit whichever system is live.
func (m *Manager) Rebalance(ctx context.Context) (RebalanceResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Rebalance(ctx)
}

func (m *Manager) Status(ctx context.Context) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status(ctx)
}

func (m *Manager) Locate(ctx context.Context, vehicleID string) (Placement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Locate(ctx, vehicleID)
}

func (m *Manager) MoveHistory() []MoveRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.MoveHistory()
}

func (m *Manager) SetBilling(ctx context.Context, mode BillingMode, amount float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.SetBilling(ctx, mode, amount)
}

func (m *Manager) Billing() (BillingMode, Rates) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Billing()
}

// Rebuild replaces the live system with an empty one. waitingCapacity is
// per lane, sized through SideRoadCapacity like the startup config.
// Billing, lane overrides and optimizer settings carry over.
func (m *Manager) Rebuild(ctx context.Context, capacity, waitingCapacity int) (*InstrumentedSystem, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("parking capacity must be positive, got %d", capacity)
	}
	if waitingCapacity < 0 {
		return nil, fmt.Errorf("waiting capacity must not be negative, got %d", waitingCapacity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	settings := m.settings
	settings.Capacity = capacity
	settings.WaitingCapacity = SideRoadCapacity(settings.NorthLane, settings.SouthLane, waitingCapacity)
	settings.BillingMode, settings.Rates = m.current.Billing()

	system, err := NewInstrumentedSystem(settings, m.telemetry, m.recorder, m.opts...)
	if err != nil {
		return nil, err
	}

	m.current.retire(ctx)
	m.current = system
	m.settings = settings
	return system, nil
}

package parking

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parking-lot/internal/logging"
)

type InstrumentedSystem struct {
	*System
	telemetry *TelemetryProvider
	recorder  HistoryRecorder

	// Metrics
	enterOperations     metric.Int64Counter
	leaveOperations     metric.Int64Counter
	rebalanceOperations metric.Int64Counter
	historyFailures     metric.Int64Counter
	occupancyGauge      metric.Int64UpDownCounter
	waitingGauge        metric.Int64UpDownCounter
	totalSlotsGauge     metric.Int64UpDownCounter
	operationDuration   metric.Float64Histogram
	feeHistogram        metric.Float64Histogram
}

func NewInstrumentedSystem(settings Settings, telemetry *TelemetryProvider, recorder HistoryRecorder, opts ...Option) (*InstrumentedSystem, error) {
	if recorder == nil {
		recorder = discardRecorder{}
	}

	meter := telemetry.Meter()

	enterOperations, err := meter.Int64Counter("parking_enter_total",
		metric.WithDescription("Total number of entry attempts by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	leaveOperations, err := meter.Int64Counter("parking_leave_total",
		metric.WithDescription("Total number of departure attempts by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	rebalanceOperations, err := meter.Int64Counter("parking_rebalance_total",
		metric.WithDescription("Total number of rebalance attempts by result"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	historyFailures, err := meter.Int64Counter("parking_history_failures_total",
		metric.WithDescription("Departures whose history entry could not be stored"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64UpDownCounter("parking_lot_occupancy",
		metric.WithDescription("Current number of parked vehicles"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	waitingGauge, err := meter.Int64UpDownCounter("parking_side_road_waiting",
		metric.WithDescription("Current number of vehicles waiting on the side road"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	totalSlotsGauge, err := meter.Int64UpDownCounter("parking_lot_total_slots",
		metric.WithDescription("Total number of parking slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of parking lot operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	feeHistogram, err := meter.Float64Histogram("parking_fee",
		metric.WithDescription("Fees charged on departure"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	is := &InstrumentedSystem{
		System:              NewSystem(settings, opts...),
		telemetry:           telemetry,
		recorder:            recorder,
		enterOperations:     enterOperations,
		leaveOperations:     leaveOperations,
		rebalanceOperations: rebalanceOperations,
		historyFailures:     historyFailures,
		occupancyGauge:      occupancyGauge,
		waitingGauge:        waitingGauge,
		totalSlotsGauge:     totalSlotsGauge,
		operationDuration:   operationDuration,
		feeHistogram:        feeHistogram,
	}

	totalSlotsGauge.Add(context.Background(), int64(settings.Capacity))

	return is, nil
}

// retire takes this system's contribution back out of the shared
// up-down counters before it is replaced.
func (is *InstrumentedSystem) retire(ctx context.Context) {
	status := is.System.Status()
	is.occupancyGauge.Add(ctx, -int64(status.Occupied))
	is.waitingGauge.Add(ctx, -int64(status.Waiting))
	is.totalSlotsGauge.Add(ctx, -int64(status.Capacity))
}

// Recorder is the history store departures are written to.
func (is *InstrumentedSystem) Recorder() HistoryRecorder {
	return is.recorder
}

func (is *InstrumentedSystem) Enter(ctx context.Context, vehicleID string) (EnterResult, error) {
	ctx, span := is.telemetry.Tracer().Start(ctx, "parking_lot.enter",
		trace.WithAttributes(attribute.String("vehicle.id", vehicleID)))
	defer span.End()

	start := time.Now()

	span.AddEvent("checking_capacity")

	result, err := is.System.Enter(vehicleID)

	labels := []attribute.KeyValue{
		attribute.String("operation", "enter"),
		attribute.String("outcome", string(result.Outcome)),
	}

	span.SetAttributes(attribute.String("parking.outcome", string(result.Outcome)))

	switch result.Outcome {
	case OutcomeParked:
		span.AddEvent("vehicle_parked", trace.WithAttributes(attribute.String("position", result.Position)))
		is.occupancyGauge.Add(ctx, 1)
		logging.Info(ctx, "vehicle parked", logging.Vehicle(vehicleID), logging.Position(result.Position))
	case OutcomeInSideRoad:
		span.AddEvent("vehicle_queued", trace.WithAttributes(attribute.String("position", result.Position)))
		is.waitingGauge.Add(ctx, 1)
		logging.Info(ctx, "vehicle waiting on side road", logging.Vehicle(vehicleID), logging.Position(result.Position))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Message)
		logging.Warn(ctx, "vehicle not admitted", logging.Vehicle(vehicleID), "outcome", result.Outcome, "reason", result.Message)
	}

	is.enterOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	is.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return result, err
}

// Leave departs the vehicle and hands the history entry to the recorder.
// A recorder failure is logged and counted; the departure itself stands.
func (is *InstrumentedSystem) Leave(ctx context.Context, vehicleID string) (LeaveResult, error) {
	ctx, span := is.telemetry.Tracer().Start(ctx, "parking_lot.leave",
		trace.WithAttributes(attribute.String("vehicle.id", vehicleID)))
	defer span.End()

	start := time.Now()

	span.AddEvent("giving_way")

	result, err := is.System.Leave(vehicleID)

	labels := []attribute.KeyValue{
		attribute.String("operation", "leave"),
		attribute.String("outcome", string(result.Outcome)),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Warn(ctx, "departure failed", logging.Vehicle(vehicleID), logging.Err(err))
	} else {
		span.SetAttributes(
			attribute.String("parking.side", string(result.Departure.Side)),
			attribute.String("parking.position", result.Departure.Slot.Position),
			attribute.Int("parking.move_cost", result.Departure.MoveCost),
			attribute.Float64("parking.fee", result.Fee),
		)
		span.AddEvent("vehicle_departed")
		is.occupancyGauge.Add(ctx, -1)
		is.feeHistogram.Record(ctx, result.Fee, metric.WithAttributes(
			attribute.String("billing_mode", string(result.History.BillingMode))))

		logging.Info(ctx, "vehicle departed",
			logging.Vehicle(vehicleID),
			logging.Position(result.Departure.Slot.Position),
			logging.Side(string(result.Departure.Side)),
			logging.Stay(result.Departure.Duration),
			logging.Fee(result.Fee),
			"move_cost", result.Departure.MoveCost,
		)

		if b := result.Backfilled; b != nil {
			span.AddEvent("vehicle_backfilled", trace.WithAttributes(
				attribute.String("vehicle.id", b.Vehicle.ID),
				attribute.String("position", b.Position),
			))
			is.occupancyGauge.Add(ctx, 1)
			is.waitingGauge.Add(ctx, -1)
			logging.Info(ctx, "vehicle moved in from side road", logging.Vehicle(b.Vehicle.ID), logging.Transfer(b.FromPosition, b.Position))
		}

		if recErr := is.recorder.Record(ctx, result.History); recErr != nil {
			span.RecordError(recErr)
			is.historyFailures.Add(ctx, 1)
			logging.Error(ctx, "failed to record history", logging.Vehicle(vehicleID), logging.Err(recErr))
		}
	}

	is.leaveOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	is.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return result, err
}

func (is *InstrumentedSystem) OptimalExit(ctx context.Context, vehicleID string) (ExitRecommendation, error) {
	ctx, span := is.telemetry.Tracer().Start(ctx, "parking_lot.optimal_exit",
		trace.WithAttributes(attribute.String("vehicle.id", vehicleID)))
	defer span.End()

	start := time.Now()

	rec, err := is.System.OptimalExit(vehicleID)

	labels := []attribute.KeyValue{
		attribute.String("operation", "optimal_exit"),
	}

	if err != nil {
		span.AddEvent("vehicle_not_found")
		labels = append(labels, attribute.String("status", "not_found"))
	} else {
		span.SetAttributes(
			attribute.String("exit.side", string(rec.Side)),
			attribute.Float64("exit.cost", rec.Cost),
		)
		labels = append(labels, attribute.String("status", "found"))
		logging.Debug(ctx, "exit recommended", logging.Vehicle(vehicleID), logging.Side(string(rec.Side)), "cost", rec.Cost)
	}

	is.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return rec, err
}

func (is *InstrumentedSystem) Rebalance(ctx context.Context) (RebalanceResult, error) {
	ctx, span := is.telemetry.Tracer().Start(ctx, "parking_lot.rebalance")
	defer span.End()

	start := time.Now()

	result, err := is.System.Rebalance()

	status := "balanced"
	switch {
	case errors.Is(err, ErrRateLimited):
		status = "rate_limited"
		span.AddEvent("rate_limited")
	case result.Rebalanced:
		status = "rebalanced"
		for _, move := range result.Moves {
			span.AddEvent("vehicle_moved", trace.WithAttributes(
				attribute.String("vehicle.id", move.VehicleID),
				attribute.String("from", string(move.From)),
				attribute.String("to", string(move.To)),
			))
		}
		for _, move := range result.Moves {
			logging.Debug(ctx, "vehicle moved", logging.Vehicle(move.VehicleID), logging.Transfer(string(move.From), string(move.To)))
		}
		logging.Info(ctx, "lot rebalanced", logging.Moved(result.Moved), "imbalance", result.Imbalance)
	}

	span.SetAttributes(
		attribute.String("rebalance.result", status),
		attribute.Int("rebalance.moved", result.Moved),
	)

	labels := []attribute.KeyValue{
		attribute.String("operation", "rebalance"),
		attribute.String("result", status),
	}
	is.rebalanceOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	is.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return result, err
}

func (is *InstrumentedSystem) Status(ctx context.Context) Status {
	ctx, span := is.telemetry.Tracer().Start(ctx, "parking_lot.get_status")
	defer span.End()

	start := time.Now()

	status := is.System.Status()

	span.SetAttributes(
		attribute.Int("occupied_slots_count", status.Occupied),
		attribute.Int("waiting_count", status.Waiting),
		attribute.Int("total_capacity", status.Capacity),
	)

	is.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "get_status"),
		attribute.String("status", "success"),
	))

	return status
}

func (is *InstrumentedSystem) Locate(ctx context.Context, vehicleID string) (Placement, error) {
	_, span := is.telemetry.Tracer().Start(ctx, "parking_lot.locate",
		trace.WithAttributes(attribute.String("vehicle.id", vehicleID)))
	defer span.End()

	placement, err := is.System.Locate(vehicleID)
	if err != nil {
		span.AddEvent("vehicle_not_found")
		return placement, err
	}

	span.AddEvent("vehicle_found", trace.WithAttributes(
		attribute.String("position", placement.Position),
		attribute.Bool("in_lot", placement.InLot),
	))
	return placement, nil
}

func (is *InstrumentedSystem) SetBilling(ctx context.Context, mode BillingMode, amount float64) error {
	_, span := is.telemetry.Tracer().Start(ctx, "parking_lot.set_billing",
		trace.WithAttributes(
			attribute.String("billing.mode", string(mode)),
			attribute.Float64("billing.amount", amount),
		))
	defer span.End()

	if err := is.System.SetBilling(mode, amount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logging.Info(ctx, "billing updated", "mode", mode, logging.Fee(amount))
	return nil
}

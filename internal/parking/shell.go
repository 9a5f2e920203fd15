package parking

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const historyPageSize = 20

type Shell struct {
	manager   *Manager
	scanner   *bufio.Scanner
	out       io.Writer
	telemetry *TelemetryProvider
}

func NewShell(manager *Manager, telemetry *TelemetryProvider, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		manager:   manager,
		scanner:   bufio.NewScanner(in),
		out:       out,
		telemetry: telemetry,
	}
}

// Run reads commands line by line until the input ends or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for s.scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))
		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) processCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	command := parts[0]
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("command.name", command))

	switch command {
	case "create":
		s.handleCreate(ctx, parts)
	case "enter":
		s.handleEnter(ctx, parts)
	case "leave":
		s.handleLeave(ctx, parts)
	case "status":
		s.handleStatus(ctx)
	case "find":
		s.handleFind(ctx, parts)
	case "exit_path":
		s.handleExitPath(ctx, parts)
	case "rebalance":
		s.handleRebalance(ctx)
	case "moves":
		s.handleMoves()
	case "billing":
		s.handleBilling(ctx, parts)
	case "history":
		s.handleHistory(ctx)
	default:
		trace.SpanFromContext(ctx).AddEvent("unknown_command")
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *Shell) handleCreate(ctx context.Context, parts []string) {
	if len(parts) != 3 {
		s.printf("Usage: create <capacity> <waiting_per_lane>\n")
		return
	}

	capacity, err := strconv.Atoi(parts[1])
	if err != nil || capacity <= 0 {
		s.printf("Invalid capacity\n")
		return
	}
	waiting, err := strconv.Atoi(parts[2])
	if err != nil || waiting < 0 {
		s.printf("Invalid waiting capacity\n")
		return
	}

	system, err := s.manager.Rebuild(ctx, capacity, waiting)
	if err != nil {
		s.printf("Error creating parking lot: %s\n", err)
		return
	}
	status := system.Status(ctx)
	s.printf("Created a parking lot with %d slots and %d side road places\n", status.Capacity, status.WaitingCapacity)
}

func (s *Shell) handleEnter(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: enter <vehicle_id>\n")
		return
	}

	result, _ := s.manager.Enter(ctx, parts[1])
	s.printf("%s: %s\n", result.Outcome, result.Message)
}

func (s *Shell) handleLeave(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: leave <vehicle_id>\n")
		return
	}

	result, err := s.manager.Leave(ctx, parts[1])
	if err != nil {
		s.printf("%s: %s\n", result.Outcome, result.Message)
		return
	}

	s.printf("%s: %s\n", result.Outcome, result.Message)
	if n := len(result.Departure.Displaced); n > 0 {
		s.printf("%d vehicle(s) gave way and were put back\n", n)
	}
	if b := result.Backfilled; b != nil {
		s.printf("Vehicle %s moved in from %s to %s\n", b.Vehicle.ID, b.FromPosition, b.Position)
	}
}

func (s *Shell) handleStatus(ctx context.Context) {
	status := s.manager.Status(ctx)

	s.printf("Occupied %d/%d (%.1f%%), waiting %d/%d, billing %s\n",
		status.Occupied, status.Capacity, status.OccupancyRate,
		status.Waiting, status.WaitingCapacity, status.BillingMode)

	if status.Occupied == 0 {
		s.printf("Parking lot is empty\n")
	}
	s.printf("Slot\tVehicle\tSince\n")
	for _, slots := range [][]LotSlot{status.North, status.South} {
		for _, slot := range slots {
			s.printf("%s\t%s\t%s\n", slot.Position, slot.Vehicle.ID, slot.EntryTime.Format("15:04:05"))
		}
	}
	for _, items := range [][]QueueItem{status.NorthQueue, status.SouthQueue} {
		for _, item := range items {
			s.printf("%s\t%s\t%s\n", item.Position, item.Vehicle.ID, item.ArrivalTime.Format("15:04:05"))
		}
	}
}

func (s *Shell) handleFind(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: find <vehicle_id>\n")
		return
	}

	placement, err := s.manager.Locate(ctx, parts[1])
	if err != nil {
		s.printf("Not found\n")
		return
	}

	where := "side road"
	if placement.InLot {
		where = "lot"
	}
	s.printf("%s is at %s (%s)\n", placement.VehicleID, placement.Position, where)
}

func (s *Shell) handleExitPath(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: exit_path <vehicle_id>\n")
		return
	}

	rec, err := s.manager.OptimalExit(ctx, parts[1])
	if err != nil {
		s.printf("Not found\n")
		return
	}
	s.printf("%s should exit %s (cost %.1f; north %.1f, south %.1f)\n",
		rec.VehicleID, rec.Side, rec.Cost, rec.NorthCost, rec.SouthCost)
}

func (s *Shell) handleRebalance(ctx context.Context) {
	result, err := s.manager.Rebalance(ctx)
	if errors.Is(err, ErrRateLimited) {
		s.printf("Rebalance skipped: %s\n", result.Message)
		return
	}
	s.printf("%s\n", result.Message)
	for _, move := range result.Moves {
		s.printf("%s: %s -> %s (%s)\n", move.VehicleID, move.From, move.To, move.Position)
	}
}

func (s *Shell) handleMoves() {
	moves := s.manager.MoveHistory()
	if len(moves) == 0 {
		s.printf("No moves recorded\n")
		return
	}
	for _, move := range moves {
		s.printf("%s\t%s\t%s -> %s\n", move.Timestamp.Format("15:04:05"), move.VehicleID, move.From, move.To)
	}
}

func (s *Shell) handleBilling(ctx context.Context, parts []string) {
	if len(parts) != 3 {
		s.printf("Usage: billing <per_minute|per_hour|fixed> <amount>\n")
		return
	}

	mode, err := ParseBillingMode(parts[1])
	if err != nil {
		s.printf("Unknown billing mode: %s\n", parts[1])
		return
	}
	amount, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		s.printf("Invalid amount\n")
		return
	}

	if err := s.manager.SetBilling(ctx, mode, amount); err != nil {
		s.printf("Error: %s\n", err)
		return
	}
	s.printf("Billing set to %s at %.2f\n", mode, amount)
}

func (s *Shell) handleHistory(ctx context.Context) {
	lister, ok := s.manager.Recorder().(HistoryLister)
	if !ok {
		s.printf("History is not stored\n")
		return
	}

	entries, err := lister.List(ctx, historyPageSize, 0)
	if err != nil {
		s.printf("Error: %s\n", err)
		return
	}
	if len(entries) == 0 {
		s.printf("No history yet\n")
		return
	}
	for _, e := range entries {
		s.printf("%s\t%s\t%s\t%.2f\n", e.VehicleID, e.Position, FormatDuration(e.DurationSeconds), e.Fee)
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"parking-lot/internal/parking"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type CreateLotRequest struct {
	Capacity        int `json:"capacity"`
	WaitingCapacity int `json:"waiting_capacity"`
}

type VehicleRequest struct {
	VehicleID string `json:"vehicle_id"`
}

type BillingRequest struct {
	Mode   string  `json:"mode"`
	Amount float64 `json:"amount"`
}

type BillingResponse struct {
	Mode  parking.BillingMode `json:"mode"`
	Rates parking.Rates       `json:"rates"`
}

type LeaveResponse struct {
	Outcome   parking.Outcome   `json:"outcome"`
	VehicleID string            `json:"vehicle_id"`
	Side      parking.Side      `json:"side"`
	Position  string            `json:"position"`
	Duration  string            `json:"duration"`
	Fee       float64           `json:"fee"`
	MoveCost  int               `json:"move_cost"`
	Displaced []parking.Vehicle `json:"displaced,omitempty"`
	Entered   *parking.Backfill `json:"entered,omitempty"`
}

type HistoryResponse struct {
	Entries []parking.HistoryEntry `json:"entries"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	WriteFailure(ctx, w, status, message, nil)
}

// WriteFailure is WriteError with a payload, for refusals that still
// carry a result such as an entry outcome.
func WriteFailure(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

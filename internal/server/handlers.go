package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parking-lot/internal/parking"
)

const maxHistoryPage = 100

type Handler struct {
	manager     *parking.Manager
	serviceName string
}

func NewHandler(manager *parking.Manager, serviceName string) *Handler {
	return &Handler{
		manager:     manager,
		serviceName: serviceName,
	}
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, parking.ErrInvalidVehicleID),
		errors.Is(err, parking.ErrUnknownBillingMode):
		return http.StatusBadRequest
	case errors.Is(err, parking.ErrDuplicateVehicle),
		errors.Is(err, parking.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, parking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, parking.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Meta:    extractMeta(r.Context()),
	})
}

func (h *Handler) CreateParkingLot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Capacity <= 0 {
		WriteError(ctx, w, http.StatusBadRequest, "Capacity must be greater than 0")
		return
	}
	if req.WaitingCapacity < 0 {
		WriteError(ctx, w, http.StatusBadRequest, "Waiting capacity must not be negative")
		return
	}

	system, err := h.manager.Rebuild(ctx, req.Capacity, req.WaitingCapacity)
	if err != nil {
		WriteError(ctx, w, http.StatusInternalServerError, "Failed to create parking lot")
		return
	}

	WriteSuccess(ctx, w, "Parking lot created successfully", system.Status(ctx))
}

func decodeVehicle(r *http.Request) (string, bool) {
	var req VehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	return req.VehicleID, true
}

func (h *Handler) EnterVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, ok := decodeVehicle(r)
	if !ok {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.manager.Enter(ctx, vehicleID)
	if err != nil {
		WriteFailure(ctx, w, statusFor(err), result.Message, result)
		return
	}

	WriteSuccess(ctx, w, result.Message, result)
}

func (h *Handler) LeaveVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID, ok := decodeVehicle(r)
	if !ok {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if vehicleID == "" {
		WriteError(ctx, w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	result, err := h.manager.Leave(ctx, vehicleID)
	if err != nil {
		WriteFailure(ctx, w, statusFor(err), result.Message, map[string]any{"outcome": result.Outcome})
		return
	}

	d := result.Departure
	WriteSuccess(ctx, w, result.Message, LeaveResponse{
		Outcome:   result.Outcome,
		VehicleID: d.Slot.Vehicle.ID,
		Side:      d.Side,
		Position:  d.Slot.Position,
		Duration:  parking.FormatDuration(d.Duration.Seconds()),
		Fee:       result.Fee,
		MoveCost:  d.MoveCost,
		Displaced: d.Displaced,
		Entered:   result.Backfilled,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	WriteSuccess(ctx, w, "Status retrieved successfully", h.manager.Status(ctx))
}

func (h *Handler) FindVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := chi.URLParam(r, "vehicle")

	placement, err := h.manager.Locate(ctx, vehicleID)
	if err != nil {
		WriteError(ctx, w, statusFor(err), "Vehicle not found")
		return
	}

	WriteSuccess(ctx, w, "Vehicle found", placement)
}

func (h *Handler) OptimalExit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := chi.URLParam(r, "vehicle")

	rec, err := h.manager.OptimalExit(ctx, vehicleID)
	if err != nil {
		WriteError(ctx, w, statusFor(err), "Vehicle is not parked in the lot")
		return
	}

	WriteSuccess(ctx, w, "Exit recommended", rec)
}

func (h *Handler) Rebalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.manager.Rebalance(ctx)
	if err != nil {
		WriteFailure(ctx, w, statusFor(err), result.Message, result)
		return
	}

	WriteSuccess(ctx, w, result.Message, result)
}

func (h *Handler) MoveHistory(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(r.Context(), w, "Move history retrieved successfully", h.manager.MoveHistory())
}

func (h *Handler) SetBilling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mode, err := parking.ParseBillingMode(req.Mode)
	if err != nil {
		WriteError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manager.SetBilling(ctx, mode, req.Amount); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	current, rates := h.manager.Billing()
	WriteSuccess(ctx, w, "Billing updated", BillingResponse{Mode: current, Rates: rates})
}

func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lister, ok := h.manager.Recorder().(parking.HistoryLister)
	if !ok {
		WriteError(ctx, w, http.StatusNotImplemented, "History is not stored")
		return
	}

	limit, ok := queryInt(r, "limit", 20)
	if !ok || limit == 0 {
		WriteError(ctx, w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxHistoryPage)
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		WriteError(ctx, w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	entries, err := lister.List(ctx, limit, offset)
	if err != nil {
		WriteError(ctx, w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	if entries == nil {
		entries = []parking.HistoryEntry{}
	}

	WriteSuccess(ctx, w, "History retrieved successfully", HistoryResponse{
		Entries: entries,
		Limit:   limit,
		Offset:  offset,
	})
}

package parking

import "errors"

var (
	ErrDuplicateVehicle   = errors.New("vehicle already in the system")
	ErrCapacityExceeded   = errors.New("parking lot and side road are full")
	ErrNotFound           = errors.New("vehicle not found")
	ErrRateLimited        = errors.New("rebalance requested too frequently")
	ErrInvalidVehicleID   = errors.New("vehicle id is required")
	ErrUnknownBillingMode = errors.New("unknown billing mode")

	ErrLotFull      = errors.New("parking lot is full")
	ErrSideRoadFull = errors.New("side road is full")
)

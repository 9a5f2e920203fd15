package logging

import (
	"log/slog"
	"math"
	"time"
)

// Attribute keys shared by every parking log line.
const (
	KeyVehicle  = "vehicle"
	KeyPosition = "position"
	KeySide     = "side"
	KeyFee      = "fee"
	KeyStay     = "stay_seconds"
	KeyMoved    = "moved"
	KeyError    = "error"
)

func Vehicle(id string) slog.Attr {
	return slog.String(KeyVehicle, id)
}

// Position is a slot label (N1, S2) or a side road label (NQ1).
func Position(label string) slog.Attr {
	return slog.String(KeyPosition, label)
}

func Side(side string) slog.Attr {
	return slog.String(KeySide, side)
}

// Fee rounds to cents so float noise stays out of the logs.
func Fee(amount float64) slog.Attr {
	return slog.Float64(KeyFee, math.Round(amount*100)/100)
}

// Stay is how long a vehicle was parked, in whole seconds.
func Stay(d time.Duration) slog.Attr {
	return slog.Int64(KeyStay, int64(d/time.Second))
}

func Moved(n int) slog.Attr {
	return slog.Int(KeyMoved, n)
}

// Err is safe to call with a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Transfer groups the from and to positions of a vehicle that changed
// places, such as a side road backfill or a rebalance move.
func Transfer(from, to string) slog.Attr {
	return slog.Group("transfer", slog.String("from", from), slog.String("to", to))
}

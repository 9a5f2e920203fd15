package parking

import (
	"fmt"
	"strings"
)

type BillingMode string

const (
	PerMinute BillingMode = "per_minute"
	PerHour   BillingMode = "per_hour"
	Fixed     BillingMode = "fixed"
)

func ParseBillingMode(v string) (BillingMode, error) {
	mode := BillingMode(strings.ToLower(strings.TrimSpace(v)))
	switch mode {
	case PerMinute, PerHour, Fixed:
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBillingMode, v)
}

type Rates struct {
	PerMinute float64 `json:"fee_per_minute"`
	PerHour   float64 `json:"fee_per_hour"`
	Fixed     float64 `json:"fixed_fee"`
}

// With returns a copy of r with the rate for mode replaced by amount.
func (r Rates) With(mode BillingMode, amount float64) Rates {
	switch mode {
	case PerMinute:
		r.PerMinute = amount
	case PerHour:
		r.PerHour = amount
	case Fixed:
		r.Fixed = amount
	}
	return r
}

// Fee prices a stay of the given length. Unknown modes are free.
func Fee(seconds float64, mode BillingMode, rates Rates) float64 {
	switch mode {
	case PerMinute:
		return seconds / 60 * rates.PerMinute
	case PerHour:
		return seconds / 3600 * rates.PerHour
	case Fixed:
		return rates.Fixed
	default:
		return 0
	}
}

// FormatDuration renders whole seconds as HH:MM:SS, truncating fractions.
func FormatDuration(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := total % 3600 / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

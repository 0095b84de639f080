package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOverSell is returned when a sell exceeds the shares held
	ErrOverSell = errors.New("sell quantity exceeds held shares")
	// ErrUnsupportedTradeType is returned for unknown event kinds
	ErrUnsupportedTradeType = errors.New("unsupported trade type")
	// ErrLockContention means another refresh owns the refresh lock
	ErrLockContention = errors.New("refresh lock already held")
	// ErrUpstreamDataUnavailable means the price source returned nothing for a window
	ErrUpstreamDataUnavailable = errors.New("upstream price data unavailable")
	// ErrInvalidDateParse is returned for malformed dates in imported data
	ErrInvalidDateParse = errors.New("invalid date")
	// ErrUnsupportedInterval is returned for unknown resample intervals
	ErrUnsupportedInterval = errors.New("unsupported interval")
	// ErrNotFound is returned when a referenced entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount is returned for negative prices, quantities or commissions
	ErrInvalidAmount = errors.New("invalid amount")
)

// OverSellError carries the quantities of a rejected sell.
// It matches ErrOverSell with errors.Is.
type OverSellError struct {
	Symbol    string
	Held      float64
	Requested float64
}

func (e *OverSellError) Error() string {
	return fmt.Sprintf("cannot sell %g %s: only %g held", e.Requested, e.Symbol, e.Held)
}

// Is makes errors.Is(err, ErrOverSell) hold
func (e *OverSellError) Is(target error) bool {
	return target == ErrOverSell
}

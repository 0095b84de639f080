package refresh

import (
	"time"
)

// MarketClock answers the session questions the refresh policy needs
type MarketClock interface {
	IsMarketOpen(t time.Time) bool
	LastTradingDay(t time.Time) time.Time
	CloseAt(day time.Time) time.Time
	Today(t time.Time) time.Time
}

// Phase is the coarse refresh state reported to callers
type Phase string

const (
	PhaseFresh    Phase = "fresh"
	PhaseStale    Phase = "stale"
	PhaseInFlight Phase = "refresh_in_flight"
)

// ShouldRefresh decides whether a refresh is due.
//
// With allowCatchUp a refresh is due when none has run, when the last one is
// dated before the most recent trading day, or when it ran before that day's
// close and now is past it. Otherwise a refresh is only due while the market
// is open and the last run is at least maxAge old.
func ShouldRefresh(clock MarketClock, last *time.Time, now time.Time, maxAge time.Duration, allowCatchUp bool) bool {
	if allowCatchUp {
		if last == nil {
			return true
		}
		tradingDay := clock.LastTradingDay(now)
		lastDay := clock.Today(*last)
		if lastDay.Before(tradingDay) {
			return true
		}
		closeAt := clock.CloseAt(tradingDay)
		if lastDay.Equal(tradingDay) && !now.Before(closeAt) && last.Before(closeAt) {
			return true
		}
	}

	if !clock.IsMarketOpen(now) {
		return false
	}
	if last == nil {
		return true
	}
	return now.Sub(*last) >= maxAge
}

// PhaseOf classifies the state at now
func PhaseOf(clock MarketClock, s State, now time.Time, maxAge time.Duration, allowCatchUp bool) Phase {
	if s.Locked(now) {
		return PhaseInFlight
	}
	if ShouldRefresh(clock, s.LastRefresh, now, maxAge, allowCatchUp) {
		return PhaseStale
	}
	return PhaseFresh
}

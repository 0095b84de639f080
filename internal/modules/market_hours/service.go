// Package market_hours answers trading-session questions for the tracked market.
package market_hours

import (
	"fmt"
	"time"

	"github.com/aristath/folio/internal/config"
)

// MarketHoursService knows the market's timezone and daily session.
// Trading days are Monday to Friday; the session includes both endpoints.
type MarketHoursService struct {
	location *time.Location
	open     time.Duration // offset from local midnight
	close    time.Duration
}

// MarketStatus describes the session relative to a point in time
type MarketStatus struct {
	Timezone       string    `json:"timezone"`
	Open           bool      `json:"open"`
	LastTradingDay string    `json:"last_trading_day"`
	OpensAt        time.Time `json:"opens_at"`
	ClosesAt       time.Time `json:"closes_at"`
}

// NewMarketHoursService creates a service for the configured market
func NewMarketHoursService(cfg config.MarketConfig) (*MarketHoursService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone %q: %w", cfg.Timezone, err)
	}
	open, err := config.ParseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid market open: %w", err)
	}
	closeAt, err := config.ParseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid market close: %w", err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("market close %s is not after open %s", cfg.Close, cfg.Open)
	}

	return &MarketHoursService{location: loc, open: open, close: closeAt}, nil
}

// Location returns the market timezone
func (s *MarketHoursService) Location() *time.Location {
	return s.location
}

// IsTradingDay reports whether the market-local date of t is Monday to Friday
func (s *MarketHoursService) IsTradingDay(t time.Time) bool {
	wd := t.In(s.location).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsMarketOpen reports whether t falls inside a trading session
func (s *MarketHoursService) IsMarketOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	local := t.In(s.location)
	return !local.Before(s.OpenAt(local)) && !local.After(s.CloseAt(local))
}

// LastTradingDay returns local midnight of the most recent trading day on or before t
func (s *MarketHoursService) LastTradingDay(t time.Time) time.Time {
	day := s.midnight(t)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// OpenAt returns the session open on the market-local date of day
func (s *MarketHoursService) OpenAt(day time.Time) time.Time {
	return s.at(day, s.open)
}

// CloseAt returns the session close on the market-local date of day
func (s *MarketHoursService) CloseAt(day time.Time) time.Time {
	return s.at(day, s.close)
}

// Today returns the market-local calendar date of t at local midnight
func (s *MarketHoursService) Today(t time.Time) time.Time {
	return s.midnight(t)
}

// NextOpen returns the first session open strictly after t
func (s *MarketHoursService) NextOpen(t time.Time) time.Time {
	day := s.midnight(t)
	for {
		open := s.OpenAt(day)
		if open.After(t) && s.IsTradingDay(open) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
}

// GetMarketStatus returns the session status at t
func (s *MarketHoursService) GetMarketStatus(t time.Time) *MarketStatus {
	last := s.LastTradingDay(t)
	status := &MarketStatus{
		Timezone:       s.location.String(),
		Open:           s.IsMarketOpen(t),
		LastTradingDay: last.Format("2006-01-02"),
		ClosesAt:       s.CloseAt(last),
	}
	if status.Open {
		status.OpensAt = s.OpenAt(t)
	} else {
		status.OpensAt = s.NextOpen(t)
	}
	return status
}

func (s *MarketHoursService) midnight(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}

// at builds a wall-clock time on the local date so DST transitions keep the
// configured hour and minute.
func (s *MarketHoursService) at(day time.Time, offset time.Duration) time.Time {
	local := day.In(s.location)
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, s.location)
}

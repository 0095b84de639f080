package market_hours

import (
	"testing"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newASX(t *testing.T) *MarketHoursService {
	t.Helper()
	s, err := NewMarketHoursService(config.MarketConfig{
		Timezone: "Australia/Sydney",
		Open:     "10:00",
		Close:    "16:10",
	})
	require.NoError(t, err)
	return s
}

func sydney(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestNewMarketHoursService_Invalid(t *testing.T) {
	_, err := NewMarketHoursService(config.MarketConfig{Timezone: "Nowhere/City", Open: "10:00", Close: "16:00"})
	assert.Error(t, err)

	_, err = NewMarketHoursService(config.MarketConfig{Timezone: "UTC", Open: "16:00", Close: "10:00"})
	assert.Error(t, err)
}

func TestIsMarketOpen(t *testing.T) {
	s := newASX(t)

	testCases := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		// 2024-01-03 is a Wednesday
		{"before open", sydney(t, 2024, 1, 3, 9, 59), false},
		{"at open", sydney(t, 2024, 1, 3, 10, 0), true},
		{"midday", sydney(t, 2024, 1, 3, 13, 0), true},
		{"at close", sydney(t, 2024, 1, 3, 16, 10), true},
		{"after close", sydney(t, 2024, 1, 3, 16, 11), false},
		{"saturday midday", sydney(t, 2024, 1, 6, 13, 0), false},
		{"sunday midday", sydney(t, 2024, 1, 7, 13, 0), false},
		// 02:00 UTC Wednesday is 13:00 in Sydney (AEDT, UTC+11)
		{"utc input converted", time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, s.IsMarketOpen(tc.at))
		})
	}
}

func TestLastTradingDay(t *testing.T) {
	s := newASX(t)

	testCases := []struct {
		name     string
		at       time.Time
		expected string
	}{
		{"weekday is itself", sydney(t, 2024, 1, 3, 8, 0), "2024-01-03"},
		{"saturday steps to friday", sydney(t, 2024, 1, 6, 12, 0), "2024-01-05"},
		{"sunday steps to friday", sydney(t, 2024, 1, 7, 23, 0), "2024-01-05"},
		{"monday before open is monday", sydney(t, 2024, 1, 8, 7, 0), "2024-01-08"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, s.LastTradingDay(tc.at).Format("2006-01-02"))
		})
	}
}

func TestOpenCloseAt_AcrossDST(t *testing.T) {
	s := newASX(t)

	// Sydney leaves daylight saving on 2024-04-07
	before := s.CloseAt(sydney(t, 2024, 4, 5, 12, 0))
	after := s.CloseAt(sydney(t, 2024, 4, 8, 12, 0))

	assert.Equal(t, 16, before.Hour())
	assert.Equal(t, 16, after.Hour())
	assert.Equal(t, 10, after.Minute())
}

func TestGetMarketStatus(t *testing.T) {
	s := newASX(t)

	status := s.GetMarketStatus(sydney(t, 2024, 1, 6, 12, 0))
	assert.False(t, status.Open)
	assert.Equal(t, "2024-01-05", status.LastTradingDay)
	assert.Equal(t, sydney(t, 2024, 1, 8, 10, 0), status.OpensAt)

	open := s.GetMarketStatus(sydney(t, 2024, 1, 3, 11, 0))
	assert.True(t, open.Open)
	assert.Equal(t, sydney(t, 2024, 1, 3, 16, 10), open.ClosesAt)
}

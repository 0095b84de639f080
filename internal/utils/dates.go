package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for imports, query params and logs.
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar date in t's own location.
// Calendar dates are stored as unix seconds of that midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ToUnixDate converts a calendar date to its storage representation.
func ToUnixDate(t time.Time) int64 {
	return DateOnly(t).Unix()
}

// FromUnixDate converts a stored calendar date back to a UTC midnight time.
func FromUnixDate(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// IsWeekend reports whether the calendar date falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

package refresh

import (
	"time"

	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/utils"
)

// defaultLookback is how far back an unbounded ticker is backfilled
const defaultLookback = 365 * 24 * time.Hour

// Window is an inclusive date range to fetch
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FetchWindow computes the smallest range that brings a ticker up to date.
//
// With nothing stored the range spans the ticker's transaction bounds, or the
// last year when it has none. Otherwise it starts the day after the latest
// stored bar and ends at the last transaction or today, whichever is
// earlier; a bar already dated today is refetched. Both ends are clipped to
// weekdays. The second return is false when there is nothing to fetch.
func FetchWindow(t market_data.Ticker, latest *time.Time, today time.Time, lookback time.Duration) (Window, bool) {
	today = utils.DateOnly(today)
	if lookback <= 0 {
		lookback = defaultLookback
	}

	end := today
	if t.LastTxn != nil && t.LastTxn.Before(today) {
		end = utils.DateOnly(*t.LastTxn)
	}

	var start time.Time
	switch {
	case latest == nil && t.FirstTxn != nil:
		start = utils.DateOnly(*t.FirstTxn)
	case latest == nil:
		start = today.Add(-lookback)
	case !utils.DateOnly(*latest).Before(today):
		start = today
	default:
		start = utils.DateOnly(*latest).AddDate(0, 0, 1)
	}

	for utils.IsWeekend(start) {
		start = start.AddDate(0, 0, 1)
	}
	for utils.IsWeekend(end) {
		end = end.AddDate(0, 0, -1)
	}

	if start.After(end) {
		return Window{Start: start, End: end}, false
	}
	return Window{Start: start, End: end}, true
}

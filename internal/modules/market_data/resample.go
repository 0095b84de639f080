package market_data

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// Resample aggregates ascending daily bars into the requested interval.
// Buckets are labelled with their period end: the Sunday closing the week for
// weekly bars and the last calendar day of the month for monthly bars.
// Open is the first bar's open, High the max, Low the min, Close the last
// bar's close and Volume the sum. Periods without bars are omitted.
func Resample(bars []domain.PriceBar, interval domain.Interval) ([]domain.PriceBar, error) {
	var label func(time.Time) time.Time
	switch interval {
	case domain.IntervalDaily:
		out := make([]domain.PriceBar, len(bars))
		copy(out, bars)
		return out, nil
	case domain.IntervalWeekly:
		label = weekEnding
	case domain.IntervalMonthly:
		label = monthEnding
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedInterval, interval)
	}

	out := make([]domain.PriceBar, 0, len(bars)/4+1)
	for _, bar := range bars {
		key := label(bar.Date)
		n := len(out)
		if n > 0 && out[n-1].Date.Equal(key) {
			agg := &out[n-1]
			agg.High = math.Max(agg.High, bar.High)
			agg.Low = math.Min(agg.Low, bar.Low)
			agg.Close = bar.Close
			agg.Volume += bar.Volume
			agg.Timestamp = bar.Timestamp
			continue
		}
		out = append(out, domain.PriceBar{
			Date:      key,
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}
	return out, nil
}

func weekEnding(d time.Time) time.Time {
	offset := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, offset)
}

func monthEnding(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, d.Location())
}

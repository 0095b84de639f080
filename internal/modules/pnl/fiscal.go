package pnl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
	"github.com/shopspring/decimal"
)

// FiscalYear is the Australian financial year starting 1 July of StartYear
type FiscalYear struct {
	StartYear int
}

// FiscalYearOf returns the financial year containing d
func FiscalYearOf(d time.Time) FiscalYear {
	if d.Month() >= time.July {
		return FiscalYear{StartYear: d.Year()}
	}
	return FiscalYear{StartYear: d.Year() - 1}
}

// Start is 1 July
func (fy FiscalYear) Start() time.Time {
	return time.Date(fy.StartYear, time.July, 1, 0, 0, 0, 0, time.UTC)
}

// End is 30 June of the following year
func (fy FiscalYear) End() time.Time {
	return time.Date(fy.StartYear+1, time.June, 30, 0, 0, 0, 0, time.UTC)
}

// String renders the label, e.g. "FY2023-24"
func (fy FiscalYear) String() string {
	return fmt.Sprintf("FY%d-%02d", fy.StartYear, (fy.StartYear+1)%100)
}

// MarshalText renders the label
func (fy FiscalYear) MarshalText() ([]byte, error) {
	return []byte(fy.String()), nil
}

// ParseFiscalYear accepts "FY2023-24" or "2023-24"
func ParseFiscalYear(s string) (FiscalYear, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "FY")
	parts := strings.Split(v, "-")
	if len(parts) != 2 {
		return FiscalYear{}, fmt.Errorf("invalid financial year %q", s)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return FiscalYear{}, fmt.Errorf("invalid financial year %q", s)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil || end != (start+1)%100 {
		return FiscalYear{}, fmt.Errorf("invalid financial year %q", s)
	}
	return FiscalYear{StartYear: start}, nil
}

// FinancialYearsSince lists every financial year from the one containing
// start through the one containing now. A start after now yields start's year.
func FinancialYearsSince(start, now time.Time) []FiscalYear {
	if start.IsZero() {
		return nil
	}
	first, last := FiscalYearOf(start), FiscalYearOf(now)
	if last.StartYear < first.StartYear {
		last = first
	}
	var years []FiscalYear
	for y := first.StartYear; y <= last.StartYear; y++ {
		years = append(years, FiscalYear{StartYear: y})
	}
	return years
}

// FilterByRange keeps transactions dated within [start, end], both inclusive
func FilterByRange(txns []domain.Transaction, start, end time.Time) []domain.Transaction {
	start, end = utils.DateOnly(start), utils.DateOnly(end)
	out := make([]domain.Transaction, 0, len(txns))
	for _, t := range txns {
		d := utils.DateOnly(t.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// DatedAmount is a cash amount on a date, such as a deposit
type DatedAmount struct {
	Date   time.Time
	Amount float64
}

// Summary is the tax view of a date range
type Summary struct {
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	Label         string               `json:"label"`
	Transactions  []domain.Transaction `json:"transactions"`
	Deposits      float64              `json:"deposits"`
	CapitalGrowth float64              `json:"capital_growth"`
	Dividends     float64              `json:"dividends"`
	Total         float64              `json:"total"`
}

// TaxSummary totals realized gains, dividends and deposits of annotated
// transactions within [start, end]. Annotation must run over the full
// history first so lots opened before the range are matched.
func TaxSummary(annotated []domain.Transaction, deposits []DatedAmount, start, end time.Time, label string) Summary {
	inRange := FilterByRange(annotated, start, end)

	growth, dividends, deposited := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range inRange {
		if t.RealizedPnL != nil {
			growth = growth.Add(decimal.NewFromFloat(*t.RealizedPnL))
		}
		if t.DividendsPaid != nil {
			dividends = dividends.Add(decimal.NewFromFloat(*t.DividendsPaid))
		}
	}

	s, e := utils.DateOnly(start), utils.DateOnly(end)
	for _, d := range deposits {
		day := utils.DateOnly(d.Date)
		if day.Before(s) || day.After(e) {
			continue
		}
		deposited = deposited.Add(decimal.NewFromFloat(d.Amount))
	}

	return Summary{
		Start:         s,
		End:           e,
		Label:         label,
		Transactions:  inRange,
		Deposits:      deposited.RoundBank(2).InexactFloat64(),
		CapitalGrowth: growth.RoundBank(2).InexactFloat64(),
		Dividends:     dividends.RoundBank(2).InexactFloat64(),
		Total:         growth.Add(dividends).RoundBank(2).InexactFloat64(),
	}
}

// FiscalYearSummary is TaxSummary for one financial year
func FiscalYearSummary(annotated []domain.Transaction, deposits []DatedAmount, fy FiscalYear) Summary {
	return TaxSummary(annotated, deposits, fy.Start(), fy.End(), fy.String())
}

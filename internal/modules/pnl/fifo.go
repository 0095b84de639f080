// Package pnl derives realized profit and dividend income from the
// transaction log by FIFO lot matching. It is independent of the ledger's
// running-average cost basis; the two may differ slightly.
package pnl

import (
	"sort"

	"github.com/aristath/folio/internal/domain"
	"github.com/shopspring/decimal"
)

// Options tunes lot construction
type Options struct {
	// ReinvestmentCreatesLots opens a zero-commission lot for each Dividend
	// Reinvestment. Off by default: only Buy rows open lots.
	ReinvestmentCreatesLots bool
}

type lot struct {
	qty        decimal.Decimal
	price      decimal.Decimal
	commission decimal.Decimal // charged once, on the first slice consumed
}

// Annotate returns a copy of txns with RealizedPnL set on Sell rows and
// DividendsPaid set on dividend rows, sorted by (date, id).
//
// Each sell consumes the oldest open lots of its symbol first. A lot's
// commission is charged against the first slice taken from it and the sell's
// own commission is subtracted once. Quantity beyond every known lot is
// matched against a zero-cost lot, so it counts as full proceeds. Results are
// rounded to cents, half to even.
func Annotate(txns []domain.Transaction) []domain.Transaction {
	return AnnotateWith(txns, Options{})
}

// AnnotateWith is Annotate with explicit options
func AnnotateWith(txns []domain.Transaction, opts Options) []domain.Transaction {
	out := make([]domain.Transaction, len(txns))
	copy(out, txns)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})

	lots := make(map[string][]*lot)

	for i := range out {
		t := &out[i]
		t.RealizedPnL = nil
		t.DividendsPaid = nil

		qty := decimal.NewFromFloat(t.Quantity)
		price := decimal.NewFromFloat(t.Price)
		commission := decimal.NewFromFloat(t.Commission)

		switch t.Type {
		case domain.TradeBuy:
			lots[t.Symbol] = append(lots[t.Symbol], &lot{qty: qty, price: price, commission: commission})

		case domain.TradeSell:
			var realized decimal.Decimal
			realized, lots[t.Symbol] = matchSell(lots[t.Symbol], qty, price)
			realized = realized.Sub(commission).RoundBank(2)
			v := realized.InexactFloat64()
			t.RealizedPnL = &v

		case domain.TradeDividendDeposit, domain.TradeDividendReinvestment:
			if t.Type == domain.TradeDividendReinvestment && opts.ReinvestmentCreatesLots {
				lots[t.Symbol] = append(lots[t.Symbol], &lot{qty: qty, price: price})
			}
			v := decimal.NewFromFloat(t.Total).RoundBank(2).InexactFloat64()
			t.DividendsPaid = &v
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// matchSell consumes open lots oldest first and returns the gain before the
// sell's commission along with the remaining lots
func matchSell(open []*lot, qty, price decimal.Decimal) (decimal.Decimal, []*lot) {
	realized := decimal.Zero
	remaining := qty

	for remaining.IsPositive() && len(open) > 0 {
		l := open[0]
		slice := decimal.Min(remaining, l.qty)

		cost := slice.Mul(l.price).Add(l.commission)
		realized = realized.Add(slice.Mul(price).Sub(cost))

		l.commission = decimal.Zero
		l.qty = l.qty.Sub(slice)
		remaining = remaining.Sub(slice)

		if !l.qty.IsPositive() {
			open = open[1:]
		}
	}

	// zero-cost lot for shares sold beyond recorded history
	if remaining.IsPositive() {
		realized = realized.Add(remaining.Mul(price))
	}

	return realized, open
}

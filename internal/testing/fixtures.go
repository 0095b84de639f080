package testing

import (
	"time"

	"github.com/aristath/folio/internal/domain"
)

// Day returns midnight UTC of a calendar date
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewPriceBarFixtures returns n weekday bars starting at start (rolled to the
// next weekday). Close rises by step each day from base; open is the prior
// close, high and low sit 1% around the range.
func NewPriceBarFixtures(start time.Time, n int, base, step float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, 0, n)
	day := start
	prev := base
	for len(bars) < n {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		closePrice := base + step*float64(len(bars))
		hi, lo := prev, closePrice
		if closePrice > prev {
			hi, lo = closePrice, prev
		}
		bars = append(bars, domain.PriceBar{
			Date:   day,
			Open:   prev,
			High:   hi * 1.01,
			Low:    lo * 0.99,
			Close:  closePrice,
			Volume: int64(1000 * (len(bars) + 1)),
		})
		prev = closePrice
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

// NewTradeFixtures returns a small buy/sell/dividend history for one symbol
func NewTradeFixtures(symbol string) []domain.Transaction {
	rows := []struct {
		date       time.Time
		typ        domain.TradeType
		price, qty float64
		commission float64
	}{
		{Day(2023, 3, 1), domain.TradeBuy, 40, 100, 9.5},
		{Day(2023, 9, 15), domain.TradeDividendDeposit, 1.2, 100, 0},
		{Day(2024, 2, 1), domain.TradeBuy, 45, 50, 9.5},
		{Day(2024, 5, 20), domain.TradeSell, 50, 120, 9.5},
	}

	txns := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		txns[i] = domain.Transaction{
			ID:         int64(i + 1),
			Date:       r.date,
			Symbol:     symbol,
			Type:       r.typ,
			Price:      r.price,
			Quantity:   r.qty,
			Commission: r.commission,
			Total:      domain.TransactionTotal(r.typ, r.price, r.qty, r.commission),
		}
	}
	return txns
}

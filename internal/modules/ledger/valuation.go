package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// volatilityLookbackDays is the calendar window of closes used for volatility
const volatilityLookbackDays = 90

// Valuate marks a portfolio's open holdings to the latest stored close.
// Holdings without a stored price are listed in Unpriced with nil market
// value; missing prices are never an error.
func (s *Service) Valuate(ctx context.Context, portfolioID int64) (*Valuation, error) {
	if s.prices == nil {
		return nil, fmt.Errorf("valuation requires a price reader")
	}

	p, err := s.portfolios.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdings.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	v := &Valuation{
		AsOf:        now.UTC(),
		Holdings:    make([]HoldingValuation, 0, len(holdings)),
		PortfolioID: p.ID,
		Cash:        p.TotalAmount,
	}

	for _, h := range holdings {
		v.RealizedPnL += h.RealizedPnL
		if h.Shares <= 0 {
			continue
		}

		hv := HoldingValuation{Holding: h, Ticker: PriceTicker(h.Symbol, h.Exchange)}
		v.CostBasis += h.TotalCost

		closePrice, ok, err := s.prices.LatestClose(ctx, hv.Ticker)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", hv.Ticker).Msg("Failed to read latest close")
			ok = false
		}
		if ok {
			mv := closePrice * h.Shares
			unrealized := mv - h.TotalCost
			hv.Close = &closePrice
			hv.MarketValue = &mv
			hv.Unrealized = &unrealized
			v.MarketValue += mv
			v.UnrealizedPnL += unrealized
		} else {
			v.Unpriced = append(v.Unpriced, hv.Ticker)
		}

		if s.history != nil {
			hv.Volatility = s.volatility(ctx, hv.Ticker, now)
		}

		v.Holdings = append(v.Holdings, hv)
	}

	return v, nil
}

func (s *Service) volatility(ctx context.Context, ticker string, now time.Time) *float64 {
	end := utils.DateOnly(now)
	bars, err := s.history.GetBars(ctx, ticker, end.AddDate(0, 0, -volatilityLookbackDays), end)
	if err != nil {
		s.log.Debug().Err(err).Str("ticker", ticker).Msg("Failed to read price history")
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	returns := DailyReturns(closes)
	if len(returns) < 2 {
		return nil
	}
	sd := stat.StdDev(returns, nil)
	return &sd
}

// DailyReturns converts closes into simple returns, skipping non-positive closes
func DailyReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

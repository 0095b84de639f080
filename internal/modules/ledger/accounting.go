package ledger

import (
	"fmt"
	"math"

	"github.com/aristath/folio/internal/domain"
)

// shareEpsilon absorbs float drift when comparing share counts
const shareEpsilon = 1e-9

// The functions below keep the live running-average cost basis. They are
// separate from the FIFO lot matching in the pnl package; the two answer
// different questions and are allowed to diverge.

// ApplyBuy adds shares at price plus commission to the holding's cost basis
// and debits the portfolio's cash.
func ApplyBuy(h *Holding, p *Portfolio, price, quantity, commission float64) error {
	if err := validateAmounts(price, quantity, commission); err != nil {
		return err
	}

	gross := price * quantity
	h.TotalCost += gross + commission
	h.Shares += quantity
	if h.Shares > 0 {
		h.AvgCost = h.TotalCost / h.Shares
	} else {
		h.AvgCost = 0
	}
	h.InvestmentAmount = h.TotalCost
	h.LastPrice = price

	p.TotalAmount -= gross + commission
	p.TotalInvestment += gross
	return nil
}

// ApplySell removes shares at the running average cost and books the
// difference to realized PnL. Selling more than is held fails with an
// *domain.OverSellError and leaves h and p untouched.
func ApplySell(h *Holding, p *Portfolio, price, quantity, commission float64) error {
	if err := validateAmounts(price, quantity, commission); err != nil {
		return err
	}
	if quantity > h.Shares+shareEpsilon {
		return &domain.OverSellError{Symbol: h.Symbol, Held: h.Shares, Requested: quantity}
	}

	closing := h.Shares-quantity <= shareEpsilon
	costRemoved := h.AvgCost * quantity
	if closing {
		costRemoved = h.TotalCost
	}
	proceeds := price*quantity - commission

	h.RealizedPnL += proceeds - costRemoved
	h.Shares -= quantity
	h.TotalCost = math.Max(0, h.TotalCost-costRemoved)
	h.InvestmentAmount = h.TotalCost
	h.LastPrice = price

	if closing {
		h.Shares = 0
		h.AvgCost = 0
		h.TotalCost = 0
		h.InvestmentAmount = 0
		h.UnrealizedPnL = 0
	}

	p.TotalAmount += proceeds
	p.TotalInvestment -= costRemoved
	return nil
}

// ApplyDividendCash credits a cash dividend. Shares and cost basis are unchanged.
func ApplyDividendCash(h *Holding, p *Portfolio, pricePerShare, quantity, commission float64) error {
	if err := validateAmounts(pricePerShare, quantity, commission); err != nil {
		return err
	}
	p.TotalAmount += pricePerShare*quantity - commission
	return nil
}

// ApplyDividendReinvestment is a buy without commission
func ApplyDividendReinvestment(h *Holding, p *Portfolio, price, quantity float64) error {
	return ApplyBuy(h, p, price, quantity, 0)
}

func validateAmounts(price, quantity, commission float64) error {
	for _, v := range []float64{price, quantity, commission} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: price=%g quantity=%g commission=%g", domain.ErrInvalidAmount, price, quantity, commission)
		}
	}
	return nil
}

// Package domain provides core domain models and types shared by the ledger,
// reporting and market-data packages.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyAUD Currency = "AUD"
	CurrencyUSD Currency = "USD"
	CurrencyPKR Currency = "PKR"
)

// Platform is the broker/platform a portfolio is held on
type Platform string

const (
	PlatformStake Platform = "STAKE"
)

// TradeType is the closed set of transaction kinds recorded in the ledger
type TradeType string

const (
	TradeBuy                  TradeType = "Buy"
	TradeSell                 TradeType = "Sell"
	TradeDividendDeposit      TradeType = "Dividend Deposit"
	TradeDividendReinvestment TradeType = "Dividend Reinvestment"
	TradeCashDeposit          TradeType = "Cash Deposit"
)

var tradeTypeAliases = map[string]TradeType{
	"buy":                   TradeBuy,
	"sell":                  TradeSell,
	"dividend deposit":      TradeDividendDeposit,
	"dividend":              TradeDividendDeposit,
	"dividend cash":         TradeDividendDeposit,
	"dividend reinvestment": TradeDividendReinvestment,
	"dividend reinvest":     TradeDividendReinvestment,
	"rdp":                   TradeDividendReinvestment,
	"cash deposit":          TradeCashDeposit,
	"cd":                    TradeCashDeposit,
}

// ParseTradeType maps free-form input (imports, API payloads) onto a TradeType.
// Matching ignores case and treats '_' and '-' as spaces.
func ParseTradeType(s string) (TradeType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	if t, ok := tradeTypeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedTradeType, s)
}

// IsValid reports whether t is one of the known trade types
func (t TradeType) IsValid() bool {
	switch t {
	case TradeBuy, TradeSell, TradeDividendDeposit, TradeDividendReinvestment, TradeCashDeposit:
		return true
	}
	return false
}

// IsDividend reports whether t is a dividend event (cash or reinvested)
func (t TradeType) IsDividend() bool {
	return t == TradeDividendDeposit || t == TradeDividendReinvestment
}

// Transaction is an immutable ledger event.
// Ordering is (Date, ID); ID is the insertion id and breaks same-day ties.
type Transaction struct {
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	HoldingID   *int64    `json:"holding_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Type        TradeType `json:"type"`
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	Total       float64   `json:"total"`
	Commission  float64   `json:"commission"`

	// Set by the FIFO reporter; nil unless applicable to the row type
	RealizedPnL   *float64 `json:"realized_pnl"`
	DividendsPaid *float64 `json:"dividends_paid"`
}

// TransactionTotal is the recorded total for a trade of the given type
func TransactionTotal(t TradeType, price, quantity, commission float64) float64 {
	gross := price * quantity
	switch t {
	case TradeBuy:
		return gross + commission
	case TradeSell, TradeDividendDeposit:
		return gross - commission
	default:
		return gross
	}
}

// PriceBar is one OHLCV bar for a ticker on a calendar date
type PriceBar struct {
	Date      time.Time  `json:"date"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Close     float64    `json:"close"`
	Volume    int64      `json:"volume"`
}

// Interval is the resampling granularity for price range queries
type Interval string

const (
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1wk"
	IntervalMonthly Interval = "1mo"
)

// IsValid reports whether i is one of the supported intervals
func (i Interval) IsValid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

// ParseInterval accepts the short codes and their long names
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1d", "daily", "d":
		return IntervalDaily, nil
	case "1wk", "weekly", "w":
		return IntervalWeekly, nil
	case "1mo", "monthly", "m":
		return IntervalMonthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedInterval, s)
}

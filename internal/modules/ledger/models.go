// Package ledger applies trade, dividend and cash events to holdings and
// portfolio cash, and records every mutation in the transaction log.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// ErrBatchRolledBack marks rows of an atomic import that were valid but
// discarded because another row failed
var ErrBatchRolledBack = errors.New("import batch rolled back")

// Portfolio is one investment account with its cash balance
type Portfolio struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Currency        domain.Currency `json:"currency"`
	Platform        domain.Platform `json:"platform"`
	ID              int64           `json:"id"`
	TotalAmount     float64         `json:"total_amount"` // cash
	TotalInvestment float64         `json:"total_investment"`
}

// Holding is the running-average position of one symbol in a portfolio
type Holding struct {
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Symbol           string    `json:"symbol"`
	Exchange         string    `json:"exchange"`
	CompanyName      string    `json:"company_name"`
	Sector           string    `json:"sector"`
	ID               int64     `json:"id"`
	PortfolioID      int64     `json:"portfolio_id"`
	Shares           float64   `json:"shares"`
	AvgCost          float64   `json:"avg_cost"`
	TotalCost        float64   `json:"total_cost"`
	InvestmentAmount float64   `json:"investment_amount"`
	RealizedPnL      float64   `json:"realized_pnl"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	LastPrice        float64   `json:"last_price"`
}

// Deposit is a cash movement into a portfolio
type Deposit struct {
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
	Currency    domain.Currency `json:"currency"`
	Platform    domain.Platform `json:"platform"`
	ID          int64           `json:"id"`
	PortfolioID int64           `json:"portfolio_id"`
	Amount      float64         `json:"amount"`
}

// TradeEvent is an instruction to mutate a holding
type TradeEvent struct {
	Date        time.Time        `json:"date"`
	Symbol      string           `json:"symbol"`
	Exchange    string           `json:"exchange"`
	Type        domain.TradeType `json:"trade_type"`
	PortfolioID int64            `json:"portfolio_id"`
	Price       float64          `json:"price"`
	Quantity    float64          `json:"quantity"`
	Commission  float64          `json:"commission"`
}

// DividendConfirmation records a paid dividend, optionally reinvested
type DividendConfirmation struct {
	Date          time.Time `json:"date"`
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	PortfolioID   int64     `json:"portfolio_id"`
	Amount        float64   `json:"amount"`
	Reinvest      bool      `json:"reinvest"`
	ReinvestPrice float64   `json:"reinvest_price"`
}

// ImportPolicy decides what happens to a batch when one row fails
type ImportPolicy int

const (
	// BestEffort commits every valid row in its own transaction
	BestEffort ImportPolicy = iota
	// Atomic commits all rows or none
	Atomic
)

// ImportRow is one unparsed row from an import source
type ImportRow struct {
	Date       string  `json:"date"`
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	Type       string  `json:"type"`
	Row        int     `json:"row"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
}

// RowResult is the outcome of one import row
type RowResult struct {
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
	Row         int    `json:"row"`
	OK          bool   `json:"ok"`
	Transaction int64  `json:"transaction_id,omitempty"`
}

// HoldingValuation is a holding marked to the latest stored close
type HoldingValuation struct {
	Holding     Holding  `json:"holding"`
	Ticker      string   `json:"ticker"`
	Close       *float64 `json:"close"`
	MarketValue *float64 `json:"market_value"`
	Unrealized  *float64 `json:"unrealized_pnl"`
	Volatility  *float64 `json:"volatility,omitempty"` // std-dev of daily returns
}

// Valuation is a portfolio marked to market
type Valuation struct {
	AsOf          time.Time          `json:"as_of"`
	Holdings      []HoldingValuation `json:"holdings"`
	PortfolioID   int64              `json:"portfolio_id"`
	Cash          float64            `json:"cash"`
	CostBasis     float64            `json:"cost_basis"`
	MarketValue   float64            `json:"market_value"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	RealizedPnL   float64            `json:"realized_pnl"`
	Unpriced      []string           `json:"unpriced,omitempty"`
}

// PriceTicker returns the market-data ticker for a holding's symbol and exchange
func PriceTicker(symbol, exchange string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch strings.ToUpper(exchange) {
	case "ASX":
		if !strings.HasSuffix(s, ".AX") {
			return s + ".AX"
		}
	case "PSX":
		if !strings.HasSuffix(s, ".PSX") {
			return s + ".PSX"
		}
	}
	return s
}

// normalizeSymbol uppercases the symbol and fills in the exchange from its suffix
func normalizeSymbol(symbol, exchange string) (string, string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	ex := strings.ToUpper(strings.TrimSpace(exchange))
	if ex == "" {
		switch {
		case strings.HasSuffix(s, ".PSX"):
			ex = "PSX"
		default:
			ex = "ASX"
		}
	}
	return s, ex
}

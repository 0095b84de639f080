// Package market_data stores cached OHLCV history and the ticker registry
// that bounds how much of it needs refreshing.
package market_data

import (
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// Series is the price history of one ticker at one interval
type Series struct {
	Ticker   string            `json:"ticker"`
	Interval domain.Interval   `json:"interval"`
	Bars     []domain.PriceBar `json:"bars"`
}

// Ticker is a tracked symbol and the transaction dates that bound its refresh window
type Ticker struct {
	UpdatedAt time.Time  `json:"updated_at"`
	FirstTxn  *time.Time `json:"first_txn,omitempty"`
	LastTxn   *time.Time `json:"last_txn,omitempty"`
	Symbol    string     `json:"symbol"`   // fully qualified, e.g. "BHP.AX"
	Ticker    string     `json:"ticker"`   // base code, e.g. "BHP"
	Exchange  string     `json:"exchange"` // e.g. "ASX"
}

// TxnBounds summarizes the ledger's view of a symbol
type TxnBounds struct {
	First   *time.Time
	Last    *time.Time
	OpenQty float64
}

// SymbolParts is a symbol split into base ticker and exchange
type SymbolParts struct {
	Ticker   string
	Exchange string
	Symbol   string
}

// DeriveSymbolParts splits a symbol into base ticker, exchange and fully
// qualified symbol. Symbols without a known suffix are treated as ASX listings.
//
//	"BHP.AX"   -> BHP, ASX, BHP.AX
//	"OGDC.PSX" -> OGDC, PSX, OGDC.PSX
//	"CBA"      -> CBA, ASX, CBA.AX
func DeriveSymbolParts(raw string) SymbolParts {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SymbolParts{Exchange: "ASX"}
	}

	upper := strings.ToUpper(raw)
	switch {
	case strings.HasSuffix(upper, ".AX"):
		return SymbolParts{Ticker: upper[:len(upper)-3], Exchange: "ASX", Symbol: upper}
	case strings.HasSuffix(upper, ".PSX"):
		return SymbolParts{Ticker: upper[:len(upper)-4], Exchange: "PSX", Symbol: upper}
	}
	return SymbolParts{Ticker: upper, Exchange: "ASX", Symbol: upper + ".AX"}
}

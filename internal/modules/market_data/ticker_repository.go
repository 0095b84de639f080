package market_data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/utils"
	"github.com/rs/zerolog"
)

// TickerRepository persists the tracked ticker registry
type TickerRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewTickerRepository creates a new ticker repository
func NewTickerRepository(db *sql.DB, log zerolog.Logger) *TickerRepository {
	return &TickerRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "tickers").Logger(),
	}
}

// Upsert inserts or updates a ticker
func (r *TickerRepository) Upsert(ctx context.Context, t Ticker) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickers (symbol, ticker, exchange, first_txn, last_txn, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			ticker = excluded.ticker,
			exchange = excluded.exchange,
			first_txn = excluded.first_txn,
			last_txn = excluded.last_txn,
			updated_at = excluded.updated_at
	`, t.Symbol, t.Ticker, t.Exchange, nullDate(t.FirstTxn), nullDate(t.LastTxn), r.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert ticker %s: %w", t.Symbol, err)
	}
	return nil
}

// Get returns a ticker by fully qualified symbol, or nil if it is not tracked
func (r *TickerRepository) Get(ctx context.Context, symbol string) (*Ticker, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, ticker, exchange, first_txn, last_txn, updated_at
		FROM tickers WHERE symbol = ?
	`, symbol)

	t, err := scanTicker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker %s: %w", symbol, err)
	}
	return t, nil
}

// List returns all tracked tickers ordered by symbol
func (r *TickerRepository) List(ctx context.Context) ([]Ticker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ticker, exchange, first_txn, last_txn, updated_at
		FROM tickers ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	defer rows.Close()

	var tickers []Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}
	return tickers, nil
}

// ListSymbols returns the fully qualified symbols of all tracked tickers
func (r *TickerRepository) ListSymbols(ctx context.Context) ([]string, error) {
	tickers, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		symbols = append(symbols, t.Symbol)
	}
	return symbols, nil
}

// EnsureTicker registers a symbol and refreshes its transaction bounds.
// first_txn follows the earliest transaction; last_txn is today while shares
// are still held, otherwise the latest transaction. Bounds the ledger does
// not know about leave the stored values untouched.
func (r *TickerRepository) EnsureTicker(ctx context.Context, symbol string, bounds TxnBounds, today time.Time) (*Ticker, error) {
	parts := DeriveSymbolParts(symbol)
	if parts.Ticker == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}

	t, err := r.Get(ctx, parts.Symbol)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &Ticker{Symbol: parts.Symbol}
	}
	if t.Ticker == "" {
		t.Ticker = parts.Ticker
	}
	if t.Exchange == "" {
		t.Exchange = parts.Exchange
	}

	if bounds.First != nil {
		first := utils.DateOnly(*bounds.First)
		t.FirstTxn = &first
	}
	switch {
	case bounds.OpenQty > 0:
		last := utils.DateOnly(today)
		t.LastTxn = &last
	case bounds.Last != nil:
		last := utils.DateOnly(*bounds.Last)
		t.LastTxn = &last
	}

	if err := r.Upsert(ctx, *t); err != nil {
		return nil, err
	}

	r.log.Debug().
		Str("symbol", t.Symbol).
		Interface("first_txn", t.FirstTxn).
		Interface("last_txn", t.LastTxn).
		Msg("Ensured ticker")

	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicker(row rowScanner) (*Ticker, error) {
	var t Ticker
	var first, last sql.NullInt64
	var updated int64
	if err := row.Scan(&t.Symbol, &t.Ticker, &t.Exchange, &first, &last, &updated); err != nil {
		return nil, err
	}
	if first.Valid {
		d := utils.FromUnixDate(first.Int64)
		t.FirstTxn = &d
	}
	if last.Valid {
		d := utils.FromUnixDate(last.Int64)
		t.LastTxn = &d
	}
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return &t, nil
}

func nullDate(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: utils.ToUnixDate(*t), Valid: true}
}

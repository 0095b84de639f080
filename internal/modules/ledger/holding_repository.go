package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HoldingRepository handles holding database operations
type HoldingRepository struct {
	db  querier
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

func (r *HoldingRepository) withTx(tx *sql.Tx) *HoldingRepository {
	return &HoldingRepository{db: tx, log: r.log}
}

const holdingColumns = `id, portfolio_id, symbol, exchange, company_name, sector, shares, avg_cost,
	total_cost, investment_amount, realized_pnl, unrealized_pnl, last_price, created_at, updated_at`

// Find returns the holding for (portfolio, symbol, exchange), or nil when absent
func (r *HoldingRepository) Find(ctx context.Context, portfolioID int64, symbol, exchange string) (*Holding, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE portfolio_id = ? AND symbol = ? AND exchange = ?`,
		portfolioID, symbol, exchange,
	)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %s: %w", symbol, err)
	}
	return h, nil
}

// Insert creates a holding and sets its ID
func (r *HoldingRepository) Insert(ctx context.Context, h *Holding) error {
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO holdings (portfolio_id, symbol, exchange, company_name, sector, shares, avg_cost,
			total_cost, investment_amount, realized_pnl, unrealized_pnl, last_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.PortfolioID, h.Symbol, h.Exchange, h.CompanyName, h.Sector, h.Shares, h.AvgCost,
		h.TotalCost, h.InvestmentAmount, h.RealizedPnL, h.UnrealizedPnL, h.LastPrice,
		h.CreatedAt.Unix(), h.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get holding id: %w", err)
	}
	h.ID = id
	return nil
}

// UpdateState persists the numeric position state
func (r *HoldingRepository) UpdateState(ctx context.Context, h *Holding) error {
	h.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE holdings SET shares = ?, avg_cost = ?, total_cost = ?, investment_amount = ?,
			realized_pnl = ?, unrealized_pnl = ?, last_price = ?, updated_at = ?
		WHERE id = ?`,
		h.Shares, h.AvgCost, h.TotalCost, h.InvestmentAmount,
		h.RealizedPnL, h.UnrealizedPnL, h.LastPrice, h.UpdatedAt.Unix(), h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding %d: %w", h.ID, err)
	}
	return nil
}

// UpdateMetadata sets descriptive fields
func (r *HoldingRepository) UpdateMetadata(ctx context.Context, id int64, companyName, sector string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE holdings SET company_name = ?, sector = ?, updated_at = ? WHERE id = ?`,
		companyName, sector, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding metadata %d: %w", id, err)
	}
	return nil
}

// ListByPortfolio returns the portfolio's holdings ordered by symbol
func (r *HoldingRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Holding, error) {
	return r.list(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE portfolio_id = ? ORDER BY symbol, exchange`, portfolioID)
}

// ListOpen returns holdings with shares across all portfolios
func (r *HoldingRepository) ListOpen(ctx context.Context) ([]Holding, error) {
	return r.list(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE shares > 0 ORDER BY symbol`)
}

// OpenQuantity sums shares held for any of the symbols across all portfolios
func (r *HoldingRepository) OpenQuantity(ctx context.Context, symbols []string) (float64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	query, args := inClause(`SELECT COALESCE(SUM(shares), 0) FROM holdings WHERE symbol IN `, symbols)
	var qty float64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&qty); err != nil {
		return 0, fmt.Errorf("failed to sum open quantity: %w", err)
	}
	return qty, nil
}

// DeleteByPortfolio removes every holding of a portfolio
func (r *HoldingRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete holdings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *HoldingRepository) list(ctx context.Context, query string, args ...interface{}) ([]Holding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

func scanHolding(row rowScanner) (*Holding, error) {
	var h Holding
	var created, updated int64
	if err := row.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Exchange, &h.CompanyName, &h.Sector,
		&h.Shares, &h.AvgCost, &h.TotalCost, &h.InvestmentAmount, &h.RealizedPnL,
		&h.UnrealizedPnL, &h.LastPrice, &created, &updated); err != nil {
		return nil, err
	}
	h.CreatedAt = time.Unix(created, 0).UTC()
	h.UpdatedAt = time.Unix(updated, 0).UTC()
	return &h, nil
}

// inClause appends "(?, ?, ...)" for values to prefix
func inClause(prefix string, values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	placeholders := make([]byte, 0, len(values)*3)
	for i, v := range values {
		if i > 0 {
			placeholders = append(placeholders, ", "...)
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	return prefix + "(" + string(placeholders) + ")", args
}

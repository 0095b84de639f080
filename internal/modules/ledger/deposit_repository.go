package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
	"github.com/rs/zerolog"
)

// DepositRepository handles cash deposit records
type DepositRepository struct {
	db  querier
	log zerolog.Logger
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sql.DB, log zerolog.Logger) *DepositRepository {
	return &DepositRepository{
		db:  db,
		log: log.With().Str("repo", "deposit").Logger(),
	}
}

func (r *DepositRepository) withTx(tx *sql.Tx) *DepositRepository {
	return &DepositRepository{db: tx, log: r.log}
}

// Insert records a deposit and sets its ID
func (r *DepositRepository) Insert(ctx context.Context, d *Deposit) error {
	d.Date = utils.DateOnly(d.Date)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deposits (portfolio_id, date, amount, currency, platform, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.PortfolioID, utils.ToUnixDate(d.Date), d.Amount, string(d.Currency), string(d.Platform), d.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get deposit id: %w", err)
	}
	d.ID = id
	return nil
}

// ListByPortfolio returns deposits ordered by date
func (r *DepositRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]Deposit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, date, amount, currency, platform, created_at
		FROM deposits WHERE portfolio_id = ? ORDER BY date, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	defer rows.Close()

	deposits := make([]Deposit, 0)
	for rows.Next() {
		var d Deposit
		var date, created int64
		var currency, platform string
		if err := rows.Scan(&d.ID, &d.PortfolioID, &date, &d.Amount, &currency, &platform, &created); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		d.Date = utils.FromUnixDate(date)
		d.Currency = domain.Currency(currency)
		d.Platform = domain.Platform(platform)
		d.CreatedAt = time.Unix(created, 0).UTC()
		deposits = append(deposits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposits: %w", err)
	}
	return deposits, nil
}

// DeleteByPortfolio removes a portfolio's deposits
func (r *DepositRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deposits WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete deposits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

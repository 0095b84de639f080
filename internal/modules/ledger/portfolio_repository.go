package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	db  querier
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// withTx returns a copy bound to tx
func (r *PortfolioRepository) withTx(tx *sql.Tx) *PortfolioRepository {
	return &PortfolioRepository{db: tx, log: r.log}
}

const portfolioColumns = `id, user_id, name, currency, platform, total_amount, total_investment, created_at, updated_at`

// Create inserts a portfolio and sets its ID
func (r *PortfolioRepository) Create(ctx context.Context, p *Portfolio) error {
	if p.Currency == "" {
		p.Currency = domain.CurrencyAUD
	}
	if p.Platform == "" {
		p.Platform = domain.PlatformStake
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolios (user_id, name, currency, platform, total_amount, total_investment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, string(p.Currency), string(p.Platform),
		p.TotalAmount, p.TotalInvestment, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get portfolio id: %w", err)
	}
	p.ID = id
	return nil
}

// Get returns a portfolio or an error wrapping domain.ErrNotFound
func (r *PortfolioRepository) Get(ctx context.Context, id int64) (*Portfolio, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}
	return p, nil
}

// List returns all portfolios, optionally restricted to a user
func (r *PortfolioRepository) List(ctx context.Context, userID string) ([]Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

// UpdateBalances persists cash and invested capital
func (r *PortfolioRepository) UpdateBalances(ctx context.Context, p *Portfolio) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE portfolios SET total_amount = ?, total_investment = ?, updated_at = ?
		WHERE id = ?`,
		p.TotalAmount, p.TotalInvestment, p.UpdatedAt.Unix(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %d: %w", p.ID, err)
	}
	return nil
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var p Portfolio
	var currency, platform string
	var created, updated int64
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &currency, &platform,
		&p.TotalAmount, &p.TotalInvestment, &created, &updated); err != nil {
		return nil, err
	}
	p.Currency = domain.Currency(currency)
	p.Platform = domain.Platform(platform)
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

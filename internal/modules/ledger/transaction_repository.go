package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionRepository persists the append-only transaction log
type TransactionRepository struct {
	db  querier
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

func (r *TransactionRepository) withTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx, log: r.log}
}

const transactionColumns = `id, portfolio_id, holding_id, symbol, date, price, quantity, total, type, commission, created_at`

// Insert appends a transaction and sets its ID. Total is rounded to cents.
func (r *TransactionRepository) Insert(ctx context.Context, t *domain.Transaction) error {
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedTradeType, t.Type)
	}
	t.Date = utils.DateOnly(t.Date)
	t.Total = decimal.NewFromFloat(t.Total).Round(2).InexactFloat64()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var holdingID sql.NullInt64
	if t.HoldingID != nil {
		holdingID = sql.NullInt64{Int64: *t.HoldingID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (portfolio_id, holding_id, symbol, date, price, quantity, total, type, commission, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PortfolioID, holdingID, t.Symbol, utils.ToUnixDate(t.Date), t.Price, t.Quantity,
		t.Total, string(t.Type), t.Commission, t.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	t.ID = id
	return nil
}

// ListByPortfolio returns a portfolio's transactions ordered by (date, id)
func (r *TransactionRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE portfolio_id = ? ORDER BY date, id`, portfolioID)
}

// ListBySymbol returns transactions for any of the symbols ordered by (date, id)
func (r *TransactionRepository) ListBySymbol(ctx context.Context, portfolioID int64, symbols ...string) ([]domain.Transaction, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	query, args := inClause(`SELECT `+transactionColumns+` FROM transactions WHERE symbol IN `, symbols)
	query += ` AND portfolio_id = ? ORDER BY date, id`
	args = append(args, portfolioID)
	return r.list(ctx, query, args...)
}

// DateBounds returns the first and last trade dates for the symbols across all
// portfolios. Cash deposits are not trades and are ignored.
func (r *TransactionRepository) DateBounds(ctx context.Context, symbols []string) (first, last *time.Time, err error) {
	if len(symbols) == 0 {
		return nil, nil, nil
	}
	query, args := inClause(`SELECT MIN(date), MAX(date) FROM transactions WHERE symbol IN `, symbols)
	query += ` AND type != ?`
	args = append(args, string(domain.TradeCashDeposit))

	var minDate, maxDate sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&minDate, &maxDate); err != nil {
		return nil, nil, fmt.Errorf("failed to query transaction bounds: %w", err)
	}
	if minDate.Valid {
		d := utils.FromUnixDate(minDate.Int64)
		first = &d
	}
	if maxDate.Valid {
		d := utils.FromUnixDate(maxDate.Int64)
		last = &d
	}
	return first, last, nil
}

// DeleteByPortfolio removes a portfolio's transaction log
func (r *TransactionRepository) DeleteByPortfolio(ctx context.Context, portfolioID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0)
	for rows.Next() {
		var t domain.Transaction
		var holdingID sql.NullInt64
		var date, created int64
		var typ string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &holdingID, &t.Symbol, &date, &t.Price,
			&t.Quantity, &t.Total, &typ, &t.Commission, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if holdingID.Valid {
			id := holdingID.Int64
			t.HoldingID = &id
		}
		t.Date = utils.FromUnixDate(date)
		t.Type = domain.TradeType(typ)
		t.CreatedAt = time.Unix(created, 0).UTC()
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

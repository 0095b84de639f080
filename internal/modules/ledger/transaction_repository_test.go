package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedgerMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// each connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema("ledger")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO portfolios (id, user_id, created_at, updated_at) VALUES (1, 'u', 0, 0)`)
	require.NoError(t, err)
	return db
}

func TestTransactionRepository_InsertAndOrdering(t *testing.T) {
	db := setupLedgerMemoryDB(t)
	repo := NewTransactionRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2024, 1, d, 15, 30, 0, 0, time.UTC) }
	rows := []domain.Transaction{
		{PortfolioID: 1, Symbol: "BHP", Date: day(3), Type: domain.TradeBuy, Price: 1, Quantity: 3, Total: 3.005},
		{PortfolioID: 1, Symbol: "BHP", Date: day(2), Type: domain.TradeBuy, Price: 1, Quantity: 1, Total: 1},
		{PortfolioID: 1, Symbol: "BHP", Date: day(3), Type: domain.TradeSell, Price: 1, Quantity: 2, Total: 2},
	}
	for i := range rows {
		require.NoError(t, repo.Insert(ctx, &rows[i]))
		assert.NotZero(t, rows[i].ID)
	}

	got, err := repo.ListByPortfolio(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{rows[1].ID, rows[0].ID, rows[2].ID}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got[0].Date)
	assert.Nil(t, got[0].HoldingID)
	assert.Equal(t, 3.01, got[1].Total)

	err = repo.Insert(ctx, &domain.Transaction{PortfolioID: 1, Date: day(4), Type: "Bonus"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedTradeType)

	first, last, err := repo.DateBounds(ctx, []string{"BHP", "BHP.AX"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Day())
	assert.Equal(t, 3, last.Day())

	n, err := repo.DeleteByPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

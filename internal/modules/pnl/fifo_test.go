package pnl

import (
	"testing"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func txn(id int64, date time.Time, symbol string, typ domain.TradeType, price, qty, commission float64) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		Date:       date,
		Symbol:     symbol,
		Type:       typ,
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Total:      domain.TransactionTotal(typ, price, qty, commission),
	}
}

func findByID(t *testing.T, txns []domain.Transaction, id int64) domain.Transaction {
	t.Helper()
	for _, x := range txns {
		if x.ID == id {
			return x
		}
	}
	t.Fatalf("transaction %d not found", id)
	return domain.Transaction{}
}

func TestAnnotate_SingleLotWithCommissions(t *testing.T) {
	out := Annotate([]domain.Transaction{
		txn(1, d(2024, 1, 2), "BHP", domain.TradeBuy, 10, 10, 5),
		txn(2, d(2024, 2, 1), "BHP", domain.TradeSell, 15, 10, 3),
	})

	sell := findByID(t, out, 2)
	require.NotNil(t, sell.RealizedPnL)
	assert.Equal(t, 42.00, *sell.RealizedPnL)
	assert.Nil(t, sell.DividendsPaid)

	buy := findByID(t, out, 1)
	assert.Nil(t, buy.RealizedPnL)
	assert.Nil(t, buy.DividendsPaid)
}

func TestAnnotate_PartialLotConsumption(t *testing.T) {
	out := Annotate([]domain.Transaction{
		txn(1, d(2024, 1, 2), "CBA", domain.TradeBuy, 10, 5, 0),
		txn(2, d(2024, 1, 3), "CBA", domain.TradeBuy, 20, 5, 0),
		txn(3, d(2024, 1, 4), "CBA", domain.TradeSell, 15, 8, 0),
	})

	sell := findByID(t, out, 3)
	require.NotNil(t, sell.RealizedPnL)
	assert.Equal(t, 10.00, *sell.RealizedPnL)
}

func TestAnnotate_LotCommissionChargedOnce(t *testing.T) {
	// two sells draw from one lot; the 5.00 buy commission hits only the first
	out := Annotate([]domain.Transaction{
		txn(1, d(2024, 1, 2), "WES", domain.TradeBuy, 10, 10, 5),
		txn(2, d(2024, 1, 3), "WES", domain.TradeSell, 12, 4, 0),
		txn(3, d(2024, 1, 4), "WES", domain.TradeSell, 12, 6, 0),
	})

	assert.Equal(t, 3.00, *findByID(t, out, 2).RealizedPnL)  // 48 - (40+5)
	assert.Equal(t, 12.00, *findByID(t, out, 3).RealizedPnL) // 72 - 60
}

func TestAnnotate_SellBeyondKnownLotsUsesZeroCost(t *testing.T) {
	out := Annotate([]domain.Transaction{
		txn(1, d(2024, 1, 2), "NAB", domain.TradeBuy, 10, 2, 0),
		txn(2, d(2024, 1, 3), "NAB", domain.TradeSell, 15, 5, 1),
	})

	// 2 matched at 10 (gain 10), 3 unmatched as full proceeds (45), less 1
	assert.Equal(t, 54.00, *findByID(t, out, 2).RealizedPnL)
}

func TestAnnotate_SymbolsAreIndependent(t *testing.T) {
	out := Annotate([]domain.Transaction{
		txn(1, d(2024, 1, 2), "AAA", domain.TradeBuy, 10, 1, 0),
		txn(2, d(2024, 1, 2), "BBB", domain.TradeBuy, 100, 1, 0),
		txn(3, d(2024, 1, 3), "AAA", domain.TradeSell, 11, 1, 0),
	})
	assert.Equal(t, 1.00, *findByID(t, out, 3).RealizedPnL)
}

func TestAnnotate_Dividends(t *testing.T) {
	div := domain.Transaction{ID: 2, Date: d(2024, 3, 1), Symbol: "BHP", Type: domain.TradeDividendDeposit, Total: 12.345}
	drp := txn(3, d(2024, 3, 1), "BHP", domain.TradeDividendReinvestment, 40, 0.5, 0)
	cash := domain.Transaction{ID: 4, Date: d(2024, 3, 2), Type: domain.TradeCashDeposit, Total: 1000}

	out := Annotate([]domain.Transaction{txn(1, d(2024, 1, 2), "BHP", domain.TradeBuy, 10, 1, 0), div, drp, cash})

	got := findByID(t, out, 2)
	require.NotNil(t, got.DividendsPaid)
	assert.Equal(t, 12.34, *got.DividendsPaid) // half to even
	assert.Nil(t, got.RealizedPnL)

	assert.Equal(t, 20.00, *findByID(t, out, 3).DividendsPaid)

	c := findByID(t, out, 4)
	assert.Nil(t, c.DividendsPaid)
	assert.Nil(t, c.RealizedPnL)
}

func TestAnnotate_ReinvestmentLotsOption(t *testing.T) {
	in := []domain.Transaction{
		txn(1, d(2024, 1, 2), "BHP", domain.TradeDividendReinvestment, 10, 2, 0),
		txn(2, d(2024, 1, 3), "BHP", domain.TradeSell, 12, 2, 0),
	}

	assert.Equal(t, 24.00, *findByID(t, Annotate(in), 2).RealizedPnL)
	assert.Equal(t, 4.00, *findByID(t, AnnotateWith(in, Options{ReinvestmentCreatesLots: true}), 2).RealizedPnL)
}

func TestAnnotate_OutputOrderAndInputUntouched(t *testing.T) {
	in := []domain.Transaction{
		txn(5, d(2024, 1, 3), "ZZZ", domain.TradeBuy, 1, 1, 0),
		txn(2, d(2024, 1, 3), "AAA", domain.TradeBuy, 1, 1, 0),
		txn(9, d(2024, 1, 1), "MMM", domain.TradeBuy, 1, 1, 0),
	}
	in[0].RealizedPnL = new(float64)

	out := Annotate(in)
	require.Len(t, out, 3)
	assert.Equal(t, []int64{9, 2, 5}, []int64{out[0].ID, out[1].ID, out[2].ID})
	assert.Nil(t, out[2].RealizedPnL)

	// caller's slice keeps its order and fields
	assert.Equal(t, int64(5), in[0].ID)
	assert.NotNil(t, in[0].RealizedPnL)
}

func TestAnnotate_SameDayUsesIDForFIFO(t *testing.T) {
	out := Annotate([]domain.Transaction{
		txn(3, d(2024, 1, 2), "BHP", domain.TradeSell, 30, 1, 0),
		txn(1, d(2024, 1, 2), "BHP", domain.TradeBuy, 10, 1, 0),
		txn(2, d(2024, 1, 2), "BHP", domain.TradeBuy, 20, 1, 0),
	})
	assert.Equal(t, 20.00, *findByID(t, out, 3).RealizedPnL)
}

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/folio/internal/domain"
	testingpkg "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "ledger")
	conn := db.Conn()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	svc := NewService(
		conn,
		NewPortfolioRepository(conn, log),
		NewHoldingRepository(conn, log),
		NewTransactionRepository(conn, log),
		NewDepositRepository(conn, log),
		log,
	)
	return svc, conn
}

func createPortfolio(t *testing.T, svc *Service, cash float64) *Portfolio {
	t.Helper()
	p := &Portfolio{UserID: "user-1", Name: "Main", TotalAmount: cash}
	require.NoError(t, svc.CreatePortfolio(context.Background(), p))
	return p
}

func buy(portfolioID int64, symbol string, price, qty, commission float64) TradeEvent {
	return TradeEvent{
		Date:        testingpkg.Day(2024, 1, 2),
		Symbol:      symbol,
		Exchange:    "ASX",
		Type:        domain.TradeBuy,
		PortfolioID: portfolioID,
		Price:       price,
		Quantity:    qty,
		Commission:  commission,
	}
}

func sell(portfolioID int64, symbol string, price, qty, commission float64) TradeEvent {
	e := buy(portfolioID, symbol, price, qty, commission)
	e.Type = domain.TradeSell
	e.Date = testingpkg.Day(2024, 2, 1)
	return e
}

func getHolding(t *testing.T, svc *Service, portfolioID int64, symbol string) *Holding {
	t.Helper()
	h, err := svc.holdings.Find(context.Background(), portfolioID, symbol, "ASX")
	require.NoError(t, err)
	return h
}

func countTransactions(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n))
	return n
}

func TestService_ApplyBuyRecordsTransaction(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 5000)

	txn, err := svc.Apply(ctx, buy(p.ID, "bhp", 45.5, 10, 9.95))
	require.NoError(t, err)
	assert.NotZero(t, txn.ID)
	assert.Equal(t, "BHP", txn.Symbol)
	assert.Equal(t, 464.95, txn.Total)
	require.NotNil(t, txn.HoldingID)

	h := getHolding(t, svc, p.ID, "BHP")
	require.NotNil(t, h)
	assert.Equal(t, *txn.HoldingID, h.ID)
	assert.InDelta(t, 464.95, h.TotalCost, 1e-9)
	assert.InDelta(t, 46.495, h.AvgCost, 1e-9)
	assert.Equal(t, 45.5, h.LastPrice)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5000-464.95, got.TotalAmount, 1e-9)
	assert.InDelta(t, 455.0, got.TotalInvestment, 1e-9)
	assert.Equal(t, 1, countTransactions(t, conn))
}

func TestService_BuySequenceSums(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	events := []TradeEvent{
		buy(p.ID, "CBA", 100, 3, 10),
		buy(p.ID, "CBA", 110.25, 7, 0),
		buy(p.ID, "CBA", 95.1, 1.5, 4.95),
	}
	var want float64
	for _, e := range events {
		_, err := svc.Apply(ctx, e)
		require.NoError(t, err)
		want += e.Price*e.Quantity + e.Commission
	}

	h := getHolding(t, svc, p.ID, "CBA")
	assert.InDelta(t, want, h.TotalCost, 1e-9)
	assert.InDelta(t, 11.5, h.Shares, 1e-9)
	assert.InDelta(t, h.TotalCost/h.Shares, h.AvgCost, 1e-9)
}

func TestService_SellAllResetsHolding(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	_, err := svc.Apply(ctx, buy(p.ID, "WES", 50, 10, 5))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, buy(p.ID, "WES", 60, 5, 5))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, sell(p.ID, "WES", 70, 15, 5))
	require.NoError(t, err)

	h := getHolding(t, svc, p.ID, "WES")
	assert.Zero(t, h.Shares)
	assert.Zero(t, h.AvgCost)
	assert.Zero(t, h.TotalCost)
	assert.Zero(t, h.InvestmentAmount)
	assert.Zero(t, h.UnrealizedPnL)
	assert.InDelta(t, (70*15-5)-(500+5+300+5), h.RealizedPnL, 1e-9)
}

func TestService_OverSellRejectedWithoutSideEffects(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)

	_, err := svc.Apply(ctx, buy(p.ID, "NAB", 30, 5, 1))
	require.NoError(t, err)

	hBefore := getHolding(t, svc, p.ID, "NAB")
	pBefore, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, sell(p.ID, "NAB", 35, 6, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOverSell))
	var ose *domain.OverSellError
	require.True(t, errors.As(err, &ose))
	assert.Equal(t, 6.0, ose.Requested)

	hAfter := getHolding(t, svc, p.ID, "NAB")
	pAfter, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, hBefore, hAfter)
	assert.Equal(t, pBefore, pAfter)
	assert.Equal(t, 1, countTransactions(t, conn))
}

func TestService_SellUnknownSymbolDoesNotCreateHolding(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	_, err := svc.Apply(ctx, sell(p.ID, "XYZ", 1, 1, 0))
	assert.ErrorIs(t, err, domain.ErrOverSell)
	assert.Nil(t, getHolding(t, svc, p.ID, "XYZ"))
}

func TestService_ApplyRejections(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	testCases := []struct {
		name    string
		event   TradeEvent
		wantErr error
	}{
		{"cash deposit is not a trade", TradeEvent{PortfolioID: p.ID, Symbol: "BHP", Type: domain.TradeCashDeposit, Price: 1, Quantity: 1}, domain.ErrUnsupportedTradeType},
		{"unknown type", TradeEvent{PortfolioID: p.ID, Symbol: "BHP", Type: "Split", Price: 1, Quantity: 1}, domain.ErrUnsupportedTradeType},
		{"negative price", TradeEvent{PortfolioID: p.ID, Symbol: "BHP", Type: domain.TradeBuy, Price: -1, Quantity: 1}, domain.ErrInvalidAmount},
		{"missing portfolio", TradeEvent{PortfolioID: p.ID + 100, Symbol: "BHP", Type: domain.TradeBuy, Price: 1, Quantity: 1}, domain.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tc.event)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Equal(t, 0, countTransactions(t, conn))
}

func TestService_DividendEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	_, err := svc.Apply(ctx, buy(p.ID, "BHP", 40, 100, 0))
	require.NoError(t, err)

	div := buy(p.ID, "BHP", 0.8, 100, 1)
	div.Type = domain.TradeDividendDeposit
	txn, err := svc.Apply(ctx, div)
	require.NoError(t, err)
	assert.Equal(t, 79.0, txn.Total)

	drp := buy(p.ID, "BHP", 40, 2, 9.95)
	drp.Type = domain.TradeDividendReinvestment
	txn, err = svc.Apply(ctx, drp)
	require.NoError(t, err)
	assert.Zero(t, txn.Commission)

	h := getHolding(t, svc, p.ID, "BHP")
	assert.Equal(t, 102.0, h.Shares)
	assert.InDelta(t, 4080.0, h.TotalCost, 1e-9)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, -4000+79-80, got.TotalAmount, 1e-9)
}

func TestService_ConcurrentBuysSerialize(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, buy(p.ID, "CSL", 10, 1, 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h := getHolding(t, svc, p.ID, "CSL")
	assert.Equal(t, float64(n), h.Shares)
	assert.InDelta(t, n*11.0, h.TotalCost, 1e-9)
	assert.Equal(t, n, countTransactions(t, conn))

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, -n*11.0, got.TotalAmount, 1e-9)
}

func TestService_ConcurrentSellsObserveEachOther(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)
	_, err := svc.Apply(ctx, buy(p.ID, "TLS", 4, 10, 0))
	require.NoError(t, err)

	const attempts = 15
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, overs := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, sell(p.ID, "TLS", 5, 1, 0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrOverSell):
				overs++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 5, overs)
	assert.Zero(t, getHolding(t, svc, p.ID, "TLS").Shares)
}

func TestService_GetOrCreateHoldingEnrichesMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	meta := testingpkg.NewMockMetadataProvider()
	meta.SetMetadata("BHP.AX", domain.SecurityMetadata{Name: "BHP Group Limited", Sector: "Materials"})
	svc.SetMetadataProvider(meta)

	h, err := svc.GetOrCreateHolding(ctx, p.ID, "BHP", "ASX")
	require.NoError(t, err)
	assert.Zero(t, h.Shares)
	assert.Equal(t, "BHP Group Limited", h.CompanyName)

	// populated metadata is never replaced, including by empty values
	meta.SetMetadata("BHP.AX", domain.SecurityMetadata{})
	again, err := svc.GetOrCreateHolding(ctx, p.ID, "BHP", "ASX")
	require.NoError(t, err)
	assert.Equal(t, h.ID, again.ID)
	assert.Equal(t, "BHP Group Limited", again.CompanyName)
	assert.Equal(t, "Materials", again.Sector)
	assert.Equal(t, 1, meta.CallCount())
}

func TestService_MetadataFailureDoesNotFailTrade(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	meta := testingpkg.NewMockMetadataProvider()
	meta.SetError(errors.New("upstream down"))
	svc.SetMetadataProvider(meta)

	_, err := svc.Apply(ctx, buy(p.ID, "FMG", 20, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, getHolding(t, svc, p.ID, "FMG").CompanyName)
}

func TestService_RecordDeposit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	d, err := svc.RecordDeposit(ctx, p.ID, 2500, testingpkg.Day(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyAUD, d.Currency)
	assert.Equal(t, domain.PlatformStake, d.Platform)

	_, err = svc.RecordDeposit(ctx, p.ID, -1, testingpkg.Day(2024, 1, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, got.TotalAmount)

	deposits, err := svc.ListDeposits(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestService_ConfirmDividend(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	txns, err := svc.ConfirmDividend(ctx, DividendConfirmation{
		Date:          testingpkg.Day(2024, 3, 28),
		Symbol:        "BHP",
		Exchange:      "ASX",
		PortfolioID:   p.ID,
		Amount:        90,
		Reinvest:      true,
		ReinvestPrice: 45,
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, domain.TradeDividendDeposit, txns[0].Type)
	assert.Zero(t, txns[0].Price)
	assert.Zero(t, txns[0].Quantity)
	assert.Equal(t, 90.0, txns[0].Total)

	assert.Equal(t, domain.TradeDividendReinvestment, txns[1].Type)
	assert.Equal(t, 2.0, txns[1].Quantity)
	assert.Equal(t, 90.0, txns[1].Total)

	h := getHolding(t, svc, p.ID, "BHP")
	assert.Equal(t, 2.0, h.Shares)
	assert.Equal(t, 45.0, h.AvgCost)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.TotalAmount, 1e-9) // credited then reinvested

	_, err = svc.ConfirmDividend(ctx, DividendConfirmation{PortfolioID: p.ID, Symbol: "BHP", Amount: 10, Reinvest: true})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestService_ResetPortfolio(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)
	other := createPortfolio(t, svc, 0)

	_, err := svc.RecordDeposit(ctx, p.ID, 1000, testingpkg.Day(2024, 1, 1))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, buy(p.ID, "BHP", 40, 10, 0))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, buy(other.ID, "BHP", 40, 1, 0))
	require.NoError(t, err)

	require.NoError(t, svc.ResetPortfolio(ctx, p.ID))

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalAmount)
	assert.Zero(t, got.TotalInvestment)

	holdings, err := svc.ListHoldings(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
	deposits, err := svc.ListDeposits(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, deposits)

	// other portfolio untouched
	assert.Equal(t, 1, countTransactions(t, conn))
	assert.ErrorIs(t, svc.ResetPortfolio(ctx, 9999), domain.ErrNotFound)
}

func TestService_TxnBoundsAndTrackedSymbols(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 0)

	first := buy(p.ID, "BHP", 40, 10, 0)
	first.Date = testingpkg.Day(2023, 5, 1)
	_, err := svc.Apply(ctx, first)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, sell(p.ID, "BHP", 45, 4, 0))
	require.NoError(t, err)

	closed := buy(p.ID, "CBA", 100, 1, 0)
	_, err = svc.Apply(ctx, closed)
	require.NoError(t, err)
	_, err = svc.Apply(ctx, sell(p.ID, "CBA", 100, 1, 0))
	require.NoError(t, err)

	_, err = svc.Apply(ctx, TradeEvent{
		Date: testingpkg.Day(2024, 1, 2), Symbol: "AAPL", Exchange: "NASDAQ",
		Type: domain.TradeBuy, PortfolioID: p.ID, Price: 180, Quantity: 1,
	})
	require.NoError(t, err)

	bounds, err := svc.TxnBounds(ctx, "BHP.AX")
	require.NoError(t, err)
	require.NotNil(t, bounds.First)
	require.NotNil(t, bounds.Last)
	assert.Equal(t, testingpkg.Day(2023, 5, 1), *bounds.First)
	assert.Equal(t, testingpkg.Day(2024, 2, 1), *bounds.Last)
	assert.Equal(t, 6.0, bounds.OpenQty)

	none, err := svc.TxnBounds(ctx, "ZZZ.AX")
	require.NoError(t, err)
	assert.Nil(t, none.First)
	assert.Zero(t, none.OpenQty)

	tracked, err := svc.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BHP.AX"}, tracked)
}

type fakeHistory struct {
	bars map[string][]domain.PriceBar
}

func (f *fakeHistory) GetBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	return f.bars[ticker], nil
}

func TestService_Valuate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)

	_, err := svc.Apply(ctx, buy(p.ID, "BHP", 40, 10, 0))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, buy(p.ID, "CBA", 100, 2, 0))
	require.NoError(t, err)

	prices := testingpkg.NewMockLatestPriceReader()
	prices.SetPrice("BHP.AX", 45)
	history := &fakeHistory{bars: map[string][]domain.PriceBar{
		"BHP.AX": testingpkg.NewPriceBarFixtures(testingpkg.Day(2024, 1, 1), 10, 40, 0.5),
	}}
	svc.SetPriceReaders(prices, history)

	v, err := svc.Valuate(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, v.Holdings, 2)

	assert.Equal(t, 600.0, v.CostBasis)
	assert.Equal(t, 450.0, v.MarketValue)
	assert.Equal(t, 50.0, v.UnrealizedPnL)
	assert.Equal(t, []string{"CBA.AX"}, v.Unpriced)
	assert.InDelta(t, 400.0, v.Cash, 1e-9)

	byTicker := map[string]HoldingValuation{}
	for _, hv := range v.Holdings {
		byTicker[hv.Ticker] = hv
	}
	require.NotNil(t, byTicker["BHP.AX"].Unrealized)
	assert.Equal(t, 50.0, *byTicker["BHP.AX"].Unrealized)
	assert.NotNil(t, byTicker["BHP.AX"].Volatility)
	assert.Nil(t, byTicker["CBA.AX"].MarketValue)
	assert.Nil(t, byTicker["CBA.AX"].Volatility)
}

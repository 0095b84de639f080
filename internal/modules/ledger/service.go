package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/rs/zerolog"
)

// PriceHistoryReader returns stored daily bars for a ticker
type PriceHistoryReader interface {
	GetBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)
}

// Service is the holdings ledger. Every mutation runs under a per-portfolio
// lock and inside one write transaction that also appends the transaction
// (or deposit) record, so cash never moves without a matching row.
type Service struct {
	db           *sql.DB
	portfolios   *PortfolioRepository
	holdings     *HoldingRepository
	transactions *TransactionRepository
	deposits     *DepositRepository
	locks        *keyedMutex
	metadata     domain.MetadataProvider
	prices       domain.LatestPriceReader
	history      PriceHistoryReader
	now          func() time.Time
	log          zerolog.Logger
}

// NewService creates a ledger service over ledger.db
func NewService(
	db *sql.DB,
	portfolios *PortfolioRepository,
	holdings *HoldingRepository,
	transactions *TransactionRepository,
	deposits *DepositRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		portfolios:   portfolios,
		holdings:     holdings,
		transactions: transactions,
		deposits:     deposits,
		locks:        newKeyedMutex(),
		now:          time.Now,
		log:          log.With().Str("service", "ledger").Logger(),
	}
}

// SetMetadataProvider enables holding name/sector enrichment
func (s *Service) SetMetadataProvider(p domain.MetadataProvider) {
	s.metadata = p
}

// SetPriceReaders enables valuation. history may be nil.
func (s *Service) SetPriceReaders(latest domain.LatestPriceReader, history PriceHistoryReader) {
	s.prices = latest
	s.history = history
}

type txRepos struct {
	portfolios   *PortfolioRepository
	holdings     *HoldingRepository
	transactions *TransactionRepository
	deposits     *DepositRepository
}

// inTx runs fn under the portfolio lock in a single write transaction
func (s *Service) inTx(ctx context.Context, portfolioID int64, fn func(r txRepos) error) error {
	unlock := s.locks.Lock(portfolioID)
	defer unlock()

	return database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		return fn(txRepos{
			portfolios:   s.portfolios.withTx(tx),
			holdings:     s.holdings.withTx(tx),
			transactions: s.transactions.withTx(tx),
			deposits:     s.deposits.withTx(tx),
		})
	})
}

// CreatePortfolio creates an empty portfolio
func (s *Service) CreatePortfolio(ctx context.Context, p *Portfolio) error {
	if err := s.portfolios.Create(ctx, p); err != nil {
		return err
	}
	s.log.Info().Int64("portfolio_id", p.ID).Str("user", p.UserID).Msg("Created portfolio")
	return nil
}

// GetPortfolio returns a portfolio by id
func (s *Service) GetPortfolio(ctx context.Context, id int64) (*Portfolio, error) {
	return s.portfolios.Get(ctx, id)
}

// ListHoldings returns a portfolio's holdings
func (s *Service) ListHoldings(ctx context.Context, portfolioID int64) ([]Holding, error) {
	return s.holdings.ListByPortfolio(ctx, portfolioID)
}

// ListTransactions returns a portfolio's transaction log ordered by (date, id)
func (s *Service) ListTransactions(ctx context.Context, portfolioID int64) ([]domain.Transaction, error) {
	return s.transactions.ListByPortfolio(ctx, portfolioID)
}

// ListDeposits returns a portfolio's deposits
func (s *Service) ListDeposits(ctx context.Context, portfolioID int64) ([]Deposit, error) {
	return s.deposits.ListByPortfolio(ctx, portfolioID)
}

// Apply dispatches a trade event to the matching accounting operation and
// records it. Cash deposits go through RecordDeposit; any other type fails
// with domain.ErrUnsupportedTradeType before touching state.
func (s *Service) Apply(ctx context.Context, event TradeEvent) (*domain.Transaction, error) {
	if err := checkTradeType(event.Type); err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	var holding *Holding
	err := s.inTx(ctx, event.PortfolioID, func(r txRepos) error {
		var err error
		txn, holding, err = s.applyTx(ctx, r, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("portfolio_id", event.PortfolioID).
		Str("symbol", txn.Symbol).
		Str("type", string(txn.Type)).
		Float64("quantity", txn.Quantity).
		Float64("price", txn.Price).
		Int64("transaction_id", txn.ID).
		Msg("Applied trade")

	s.enrichMetadata(ctx, holding)
	return txn, nil
}

func checkTradeType(t domain.TradeType) error {
	switch t {
	case domain.TradeBuy, domain.TradeSell, domain.TradeDividendDeposit, domain.TradeDividendReinvestment:
		return nil
	}
	return fmt.Errorf("%w: %q", domain.ErrUnsupportedTradeType, t)
}

func (s *Service) applyTx(ctx context.Context, r txRepos, event TradeEvent) (*domain.Transaction, *Holding, error) {
	if err := checkTradeType(event.Type); err != nil {
		return nil, nil, err
	}
	symbol, exchange := normalizeSymbol(event.Symbol, event.Exchange)
	if symbol == "" {
		return nil, nil, fmt.Errorf("symbol is required")
	}

	p, err := r.portfolios.Get(ctx, event.PortfolioID)
	if err != nil {
		return nil, nil, err
	}

	var h *Holding
	if event.Type == domain.TradeSell {
		// never create a holding just to reject a sell against it
		h, err = r.holdings.Find(ctx, p.ID, symbol, exchange)
		if err != nil {
			return nil, nil, err
		}
		if h == nil {
			h = &Holding{PortfolioID: p.ID, Symbol: symbol, Exchange: exchange}
		}
	} else {
		h, err = getOrCreateHolding(ctx, r.holdings, p.ID, symbol, exchange)
		if err != nil {
			return nil, nil, err
		}
	}

	commission := event.Commission
	switch event.Type {
	case domain.TradeBuy:
		err = ApplyBuy(h, p, event.Price, event.Quantity, commission)
	case domain.TradeSell:
		err = ApplySell(h, p, event.Price, event.Quantity, commission)
	case domain.TradeDividendDeposit:
		err = ApplyDividendCash(h, p, event.Price, event.Quantity, commission)
	case domain.TradeDividendReinvestment:
		commission = 0
		err = ApplyDividendReinvestment(h, p, event.Price, event.Quantity)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnsupportedTradeType, event.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	if h.ID == 0 {
		err = r.holdings.Insert(ctx, h)
	} else {
		err = r.holdings.UpdateState(ctx, h)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := r.portfolios.UpdateBalances(ctx, p); err != nil {
		return nil, nil, err
	}

	holdingID := h.ID
	txn := &domain.Transaction{
		Date:        event.Date,
		HoldingID:   &holdingID,
		Symbol:      symbol,
		Type:        event.Type,
		PortfolioID: p.ID,
		Price:       event.Price,
		Quantity:    event.Quantity,
		Total:       domain.TransactionTotal(event.Type, event.Price, event.Quantity, commission),
		Commission:  commission,
		CreatedAt:   s.now().UTC(),
	}
	if err := r.transactions.Insert(ctx, txn); err != nil {
		return nil, nil, err
	}

	return txn, h, nil
}

// GetOrCreateHolding returns the holding for (portfolio, symbol, exchange),
// creating a zeroed one on first sight, then fills in missing metadata.
func (s *Service) GetOrCreateHolding(ctx context.Context, portfolioID int64, symbol, exchange string) (*Holding, error) {
	symbol, exchange = normalizeSymbol(symbol, exchange)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	var h *Holding
	err := s.inTx(ctx, portfolioID, func(r txRepos) error {
		if _, err := r.portfolios.Get(ctx, portfolioID); err != nil {
			return err
		}
		var err error
		h, err = getOrCreateHolding(ctx, r.holdings, portfolioID, symbol, exchange)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.enrichMetadata(ctx, h)
	return h, nil
}

func getOrCreateHolding(ctx context.Context, repo *HoldingRepository, portfolioID int64, symbol, exchange string) (*Holding, error) {
	h, err := repo.Find(ctx, portfolioID, symbol, exchange)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}

	h = &Holding{PortfolioID: portfolioID, Symbol: symbol, Exchange: exchange}
	if err := repo.Insert(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// enrichMetadata looks up name and sector for holdings that lack them.
// Failures are logged; the ledger never depends on metadata.
func (s *Service) enrichMetadata(ctx context.Context, h *Holding) {
	if s.metadata == nil || h == nil || h.ID == 0 || !needsMetadata(h) {
		return
	}

	meta, err := s.metadata.Metadata(ctx, PriceTicker(h.Symbol, h.Exchange))
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", h.Symbol).Msg("Metadata lookup failed")
		return
	}
	if !mergeMetadata(h, meta) {
		return
	}
	if err := s.holdings.UpdateMetadata(ctx, h.ID, h.CompanyName, h.Sector); err != nil {
		s.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Failed to store holding metadata")
	}
}

const unknownSector = "Unknown"

func needsMetadata(h *Holding) bool {
	return h.CompanyName == "" || strings.EqualFold(h.CompanyName, h.Symbol) ||
		h.Sector == "" || h.Sector == unknownSector
}

// mergeMetadata fills placeholder fields from meta and never blanks a populated one
func mergeMetadata(h *Holding, meta domain.SecurityMetadata) bool {
	changed := false
	if meta.Name != "" && (h.CompanyName == "" || strings.EqualFold(h.CompanyName, h.Symbol)) && meta.Name != h.CompanyName {
		h.CompanyName = meta.Name
		changed = true
	}
	if meta.Sector != "" && (h.Sector == "" || h.Sector == unknownSector) && meta.Sector != h.Sector {
		h.Sector = meta.Sector
		changed = true
	}
	return changed
}

// RecordDeposit credits cash and writes the deposit row in the portfolio's
// currency and platform
func (s *Service) RecordDeposit(ctx context.Context, portfolioID int64, amount float64, date time.Time) (*Deposit, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount %g", domain.ErrInvalidAmount, amount)
	}

	var d *Deposit
	err := s.inTx(ctx, portfolioID, func(r txRepos) error {
		var err error
		d, err = recordDepositTx(ctx, r, portfolioID, amount, date)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Float64("amount", amount).Msg("Recorded deposit")
	return d, nil
}

func recordDepositTx(ctx context.Context, r txRepos, portfolioID int64, amount float64, date time.Time) (*Deposit, error) {
	p, err := r.portfolios.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	d := &Deposit{
		Date:        date,
		Currency:    p.Currency,
		Platform:    p.Platform,
		PortfolioID: p.ID,
		Amount:      amount,
	}
	if err := r.deposits.Insert(ctx, d); err != nil {
		return nil, err
	}
	p.TotalAmount += amount
	if err := r.portfolios.UpdateBalances(ctx, p); err != nil {
		return nil, err
	}
	return d, nil
}

// ConfirmDividend books a paid dividend as a Dividend Deposit of the full
// amount. With Reinvest set, the amount is immediately reinvested at
// ReinvestPrice as a Dividend Reinvestment in the same transaction.
func (s *Service) ConfirmDividend(ctx context.Context, c DividendConfirmation) ([]domain.Transaction, error) {
	if c.Amount <= 0 {
		return nil, fmt.Errorf("%w: dividend amount %g", domain.ErrInvalidAmount, c.Amount)
	}
	if c.Reinvest && c.ReinvestPrice <= 0 {
		return nil, fmt.Errorf("%w: reinvestment price %g", domain.ErrInvalidAmount, c.ReinvestPrice)
	}
	symbol, exchange := normalizeSymbol(c.Symbol, c.Exchange)

	var out []domain.Transaction
	var holding *Holding
	err := s.inTx(ctx, c.PortfolioID, func(r txRepos) error {
		p, err := r.portfolios.Get(ctx, c.PortfolioID)
		if err != nil {
			return err
		}
		h, err := getOrCreateHolding(ctx, r.holdings, p.ID, symbol, exchange)
		if err != nil {
			return err
		}
		holding = h
		holdingID := h.ID

		deposit := domain.Transaction{
			Date:        c.Date,
			HoldingID:   &holdingID,
			Symbol:      symbol,
			Type:        domain.TradeDividendDeposit,
			PortfolioID: p.ID,
			Total:       c.Amount,
			CreatedAt:   s.now().UTC(),
		}
		if err := r.transactions.Insert(ctx, &deposit); err != nil {
			return err
		}
		p.TotalAmount += c.Amount
		out = append(out, deposit)

		if c.Reinvest {
			qty := c.Amount / c.ReinvestPrice
			if err := ApplyDividendReinvestment(h, p, c.ReinvestPrice, qty); err != nil {
				return err
			}
			if err := r.holdings.UpdateState(ctx, h); err != nil {
				return err
			}
			reinvest := domain.Transaction{
				Date:        c.Date,
				HoldingID:   &holdingID,
				Symbol:      symbol,
				Type:        domain.TradeDividendReinvestment,
				PortfolioID: p.ID,
				Price:       c.ReinvestPrice,
				Quantity:    qty,
				Total:       domain.TransactionTotal(domain.TradeDividendReinvestment, c.ReinvestPrice, qty, 0),
				CreatedAt:   s.now().UTC(),
			}
			if err := r.transactions.Insert(ctx, &reinvest); err != nil {
				return err
			}
			out = append(out, reinvest)
		}

		return r.portfolios.UpdateBalances(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("portfolio_id", c.PortfolioID).
		Str("symbol", symbol).
		Float64("amount", c.Amount).
		Bool("reinvest", c.Reinvest).
		Msg("Confirmed dividend")

	s.enrichMetadata(ctx, holding)
	return out, nil
}

// ResetPortfolio deletes a portfolio's transactions, holdings and deposits
// and zeroes its balances. It is the only path that removes holdings.
func (s *Service) ResetPortfolio(ctx context.Context, portfolioID int64) error {
	var txns, holdings, deposits int64
	err := s.inTx(ctx, portfolioID, func(r txRepos) error {
		p, err := r.portfolios.Get(ctx, portfolioID)
		if err != nil {
			return err
		}
		if txns, err = r.transactions.DeleteByPortfolio(ctx, p.ID); err != nil {
			return err
		}
		if holdings, err = r.holdings.DeleteByPortfolio(ctx, p.ID); err != nil {
			return err
		}
		if deposits, err = r.deposits.DeleteByPortfolio(ctx, p.ID); err != nil {
			return err
		}
		p.TotalAmount = 0
		p.TotalInvestment = 0
		return r.portfolios.UpdateBalances(ctx, p)
	})
	if err != nil {
		return err
	}

	s.log.Warn().
		Int64("portfolio_id", portfolioID).
		Int64("transactions", txns).
		Int64("holdings", holdings).
		Int64("deposits", deposits).
		Msg("Portfolio reset")
	return nil
}

// TxnBounds reports the first and last trade dates and open quantity for a
// market-data symbol such as "BHP.AX". Both the qualified and base forms are
// matched since imports store either.
func (s *Service) TxnBounds(ctx context.Context, symbol string) (market_data.TxnBounds, error) {
	parts := market_data.DeriveSymbolParts(symbol)
	candidates := []string{parts.Symbol}
	if parts.Ticker != parts.Symbol {
		candidates = append(candidates, parts.Ticker)
	}

	first, last, err := s.transactions.DateBounds(ctx, candidates)
	if err != nil {
		return market_data.TxnBounds{}, err
	}
	qty, err := s.holdings.OpenQuantity(ctx, candidates)
	if err != nil {
		return market_data.TxnBounds{}, err
	}
	return market_data.TxnBounds{First: first, Last: last, OpenQty: qty}, nil
}

// TrackedSymbols returns market-data tickers for ASX holdings with open shares
func (s *Service) TrackedSymbols(ctx context.Context) ([]string, error) {
	open, err := s.holdings.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, h := range open {
		if !strings.EqualFold(h.Exchange, "ASX") && !strings.HasSuffix(strings.ToUpper(h.Symbol), ".AX") {
			continue
		}
		t := PriceTicker(h.Symbol, "ASX")
		if !seen[t] {
			seen[t] = true
			symbols = append(symbols, t)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ListPortfolios returns portfolios, optionally for one user
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]Portfolio, error) {
	return s.portfolios.List(ctx, userID)
}

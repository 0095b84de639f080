// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/aristath/folio/internal/modules/ledger"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	ledgerConn := container.LedgerDB.Conn()
	container.PortfolioRepo = ledger.NewPortfolioRepository(ledgerConn, log)
	container.HoldingRepo = ledger.NewHoldingRepository(ledgerConn, log)
	container.TransactionRepo = ledger.NewTransactionRepository(ledgerConn, log)
	container.DepositRepo = ledger.NewDepositRepository(ledgerConn, log)

	historyConn := container.HistoryDB.Conn()
	container.HistoryRepo = market_data.NewHistoryRepository(historyConn, log)
	container.TickerRepo = market_data.NewTickerRepository(historyConn, log)
	container.RefreshState = refresh.NewStateRepository(historyConn, log)

	log.Info().Msg("Repositories initialized")
	return nil
}

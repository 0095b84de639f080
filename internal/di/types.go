/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived instance the server needs. It is
 * created by Wire() and handed to the HTTP server and cmd/server.
 */
package di

import (
	"github.com/aristath/folio/internal/clients/yahoo"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/ledger"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/modules/market_hours"
	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/work"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: ledger.db (portfolios, holdings, transactions, deposits) and
 *   history.db (tickers, daily bars, refresh state)
 * - Clients: Yahoo chart API (price gateway and metadata), optional Redis
 * - Repositories: data access per table group
 * - Services: ledger, market hours, refresh coordination, backups
 * - Background: work processor for deferred refresh jobs, cron scheduler
 */
type Container struct {
	// Databases
	LedgerDB  *database.DB // Portfolios, holdings, transactions, deposits
	HistoryDB *database.DB // Tickers, daily bars, refresh state

	// Clients
	YahooClient *yahoo.Client // Price gateway and metadata provider
	Redis       *redis.Client // nil when REDIS_URL is unset

	// Repositories
	PortfolioRepo   *ledger.PortfolioRepository
	HoldingRepo     *ledger.HoldingRepository
	TransactionRepo *ledger.TransactionRepository
	DepositRepo     *ledger.DepositRepository
	HistoryRepo     *market_data.HistoryRepository
	TickerRepo      *market_data.TickerRepository
	RefreshState    *refresh.StateRepository

	// Services
	LedgerService      *ledger.Service
	MarketHoursService *market_hours.MarketHoursService
	PriceCache         *market_data.CachedPriceReader // nil when Redis is disabled
	RefreshCoordinator *refresh.Coordinator
	BackupService      *reliability.BackupService // nil when no bucket is configured

	// Background
	WorkRegistry  *work.Registry
	WorkProcessor *work.Processor
	Scheduler     *scheduler.Scheduler

	// Metrics registry served on /metrics
	Metrics *prometheus.Registry
}

// JobInstances holds the scheduled jobs so they can be triggered manually
type JobInstances struct {
	MarketRefresh scheduler.Job
	Backup        scheduler.Job // nil when backups are disabled
	DBMaintenance scheduler.Job
}

// Close releases the databases and the Redis connection
func (c *Container) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.HistoryDB != nil {
		_ = c.HistoryDB.Close()
	}
	if c.LedgerDB != nil {
		_ = c.LedgerDB.Close()
	}
}

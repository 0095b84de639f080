// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/clients/yahoo"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/ledger"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/modules/market_hours"
	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/work"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services and wires them together.
// Order matters: the ledger needs the price readers, the coordinator needs
// the ledger and the work processor.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Metrics = prometheus.NewRegistry()
	container.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ==========================================
	// Clients
	// ==========================================
	container.YahooClient = yahoo.NewClient(log,
		yahoo.WithBaseURL(cfg.Yahoo.BaseURL),
		yahoo.WithRateLimit(cfg.Yahoo.RequestsPerSecond),
		yahoo.WithTimeout(cfg.Yahoo.Timeout),
	)

	marketHours, err := market_hours.NewMarketHoursService(cfg.Market)
	if err != nil {
		return fmt.Errorf("failed to create market hours service: %w", err)
	}
	container.MarketHoursService = marketHours

	// Latest closes come from history.db, optionally through Redis
	var latest domain.LatestPriceReader = container.HistoryRepo
	if cfg.Cache.RedisURL != "" {
		rdb, err := market_data.NewRedisClient(cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		container.Redis = rdb
		container.PriceCache = market_data.NewCachedPriceReader(container.HistoryRepo, rdb, cfg.Cache.TTL, log)
		latest = container.PriceCache
		log.Info().Msg("Redis price cache enabled")
	}

	// ==========================================
	// Ledger
	// ==========================================
	container.LedgerService = ledger.NewService(
		container.LedgerDB.Conn(),
		container.PortfolioRepo,
		container.HoldingRepo,
		container.TransactionRepo,
		container.DepositRepo,
		log,
	)
	container.LedgerService.SetMetadataProvider(container.YahooClient)
	container.LedgerService.SetPriceReaders(latest, container.HistoryRepo)

	// ==========================================
	// Work processor and refresh coordinator
	// ==========================================
	container.WorkRegistry = work.NewRegistry()
	container.WorkProcessor = work.NewProcessorWithTimeout(
		container.WorkRegistry,
		nil,
		cfg.Refresh.JobTimeout,
		cfg.Refresh.Workers,
		log,
	)

	container.RefreshCoordinator = refresh.NewCoordinator(
		container.RefreshState,
		container.LedgerService,
		container.TickerRepo,
		container.HistoryRepo,
		container.YahooClient,
		marketHours,
		cfg.Refresh,
		log,
	)
	container.RefreshCoordinator.SetMetrics(refresh.NewMetrics(container.Metrics))
	if container.PriceCache != nil {
		container.RefreshCoordinator.SetCache(container.PriceCache)
	}
	container.RefreshCoordinator.RegisterWork(container.WorkRegistry, container.WorkProcessor)

	// ==========================================
	// Backups (optional)
	// ==========================================
	if cfg.Backup.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			store,
			map[string]reliability.Snapshotter{
				"ledger":  container.LedgerDB,
				"history": container.HistoryDB,
			},
			cfg.DataDir,
			log,
		)
	} else {
		log.Info().Msg("Backup bucket not configured, backups disabled")
	}

	log.Info().Msg("Services initialized")
	return nil
}

// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/rs/zerolog"
)

// maintenanceSchedule runs integrity checks and WAL checkpoints nightly
const maintenanceSchedule = "0 15 3 * * *"

// RegisterJobs creates the scheduler and registers all periodic jobs.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}
	container.Scheduler = scheduler.New(log)

	// ==========================================
	// Market refresh: a staleness check that enqueues deferred work
	// ==========================================
	instances.MarketRefresh = scheduler.NewMarketRefreshJob(container.RefreshCoordinator, cfg.Refresh.AllowCatchUp, log)
	if err := container.Scheduler.AddJob(cfg.Refresh.Schedule, instances.MarketRefresh); err != nil {
		return nil, fmt.Errorf("failed to register market refresh job: %w", err)
	}

	// ==========================================
	// Database maintenance
	// ==========================================
	instances.DBMaintenance = reliability.NewMaintenanceJob(map[string]reliability.MaintainedDB{
		"ledger":  container.LedgerDB,
		"history": container.HistoryDB,
	}, log)
	if err := container.Scheduler.AddJob(maintenanceSchedule, instances.DBMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	// ==========================================
	// Backups (only when a bucket is configured)
	// ==========================================
	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	log.Info().Int("jobs", len(container.Scheduler.Jobs())).Msg("Jobs registered")
	return instances, nil
}

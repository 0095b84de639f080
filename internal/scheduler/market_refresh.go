package scheduler

import (
	"context"
	"time"

	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/rs/zerolog"
)

// RefreshScheduler is the part of the refresh coordinator this job drives
type RefreshScheduler interface {
	ScheduleIfNeeded(ctx context.Context, reason string, opts refresh.ScheduleOptions) (*refresh.ScheduleResult, error)
}

// MarketRefreshJob asks the coordinator to schedule a refresh on every tick.
// The coordinator decides whether one is due; the job only supplies the tick.
type MarketRefreshJob struct {
	coordinator  RefreshScheduler
	allowCatchUp bool
	log          zerolog.Logger
}

// NewMarketRefreshJob creates a new market refresh job
func NewMarketRefreshJob(coordinator RefreshScheduler, allowCatchUp bool, log zerolog.Logger) *MarketRefreshJob {
	return &MarketRefreshJob{
		coordinator:  coordinator,
		allowCatchUp: allowCatchUp,
		log:          log.With().Str("job", "market_refresh").Logger(),
	}
}

// Name returns the job name
func (j *MarketRefreshJob) Name() string {
	return "market_refresh"
}

// Run executes the market refresh job
func (j *MarketRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := j.coordinator.ScheduleIfNeeded(ctx, "scheduled", refresh.ScheduleOptions{AllowCatchUp: j.allowCatchUp})
	if err != nil {
		return err
	}

	j.log.Debug().
		Str("decision", res.Decision).
		Str("job_id", res.JobID).
		Msg("Market refresh tick")
	return nil
}

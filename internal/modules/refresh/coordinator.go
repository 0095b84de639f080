package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/utils"
	"github.com/aristath/folio/internal/work"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// WorkTypeID is the deferred job that executes a scheduled refresh
const WorkTypeID = "market:refresh"

// LedgerSource is the ledger's view of which symbols matter and when they traded
type LedgerSource interface {
	TrackedSymbols(ctx context.Context) ([]string, error)
	TxnBounds(ctx context.Context, symbol string) (market_data.TxnBounds, error)
}

// TickerStore is the ticker registry
type TickerStore interface {
	ListSymbols(ctx context.Context) ([]string, error)
	EnsureTicker(ctx context.Context, symbol string, bounds market_data.TxnBounds, today time.Time) (*market_data.Ticker, error)
}

// BarStore is the price history the coordinator writes to
type BarStore interface {
	LatestDate(ctx context.Context, ticker string) (*time.Time, error)
	UpsertBars(ctx context.Context, ticker string, bars []domain.PriceBar) (int, error)
}

// CacheInvalidator drops cached reads for refreshed tickers
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tickers ...string)
}

// SymbolStatus is the per-symbol outcome of a run
type SymbolStatus string

const (
	SymbolUpdated SymbolStatus = "updated"
	SymbolSkipped SymbolStatus = "skipped"
	SymbolError   SymbolStatus = "error"
)

// SymbolResult records what happened to one symbol
type SymbolResult struct {
	Window *Window       `json:"window,omitempty"`
	Symbol string        `json:"symbol"`
	Status SymbolStatus  `json:"status"`
	Error  string        `json:"error,omitempty"`
	Rows   int           `json:"rows"`
	Took   time.Duration `json:"took_ms"`
}

// RunResult is the structured outcome of a refresh run
type RunResult struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Errors     map[string]string `json:"errors"`
	Reason     string            `json:"reason"`
	Updated    []string          `json:"updated"`
	Skipped    []string          `json:"skipped"`
	Symbols    []SymbolResult    `json:"symbols"`
}

// ScheduleOptions tune ScheduleIfNeeded
type ScheduleOptions struct {
	AllowCatchUp bool
	Force        bool // skip the staleness check, still honour the lock
}

// ScheduleResult reports what ScheduleIfNeeded decided
type ScheduleResult struct {
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason"`
	Decision  string `json:"decision"`
	Scheduled bool   `json:"scheduled"`
}

// Schedule decisions
const (
	DecisionScheduled = "scheduled"
	DecisionFresh     = "fresh"
	DecisionLocked    = "lock_held"
)

// Coordinator drives refresh runs under the global lock
type Coordinator struct {
	state     *StateRepository
	ledger    LedgerSource
	tickers   TickerStore
	bars      BarStore
	gateway   domain.PriceGateway
	clock     MarketClock
	processor *work.Processor
	cache     CacheInvalidator
	metrics   *Metrics
	cfg       config.RefreshConfig

	lastMu  sync.RWMutex
	lastRun *RunResult
	now     func() time.Time
	log     zerolog.Logger
}

// NewCoordinator creates a refresh coordinator
func NewCoordinator(
	state *StateRepository,
	ledger LedgerSource,
	tickers TickerStore,
	bars BarStore,
	gateway domain.PriceGateway,
	clock MarketClock,
	cfg config.RefreshConfig,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		state:   state,
		ledger:  ledger,
		tickers: tickers,
		bars:    bars,
		gateway: gateway,
		clock:   clock,
		cfg:     cfg,
		metrics: NewMetrics(prometheus.NewRegistry()),
		now:     time.Now,
		log:     log.With().Str("service", "refresh").Logger(),
	}
}

// SetMetrics replaces the default unregistered collectors
func (c *Coordinator) SetMetrics(m *Metrics) {
	c.metrics = m
}

// SetCache wires an optional read cache to invalidate after upserts
func (c *Coordinator) SetCache(cache CacheInvalidator) {
	c.cache = cache
}

// RegisterWork registers the refresh job on the processor and remembers it
// as the target for ScheduleIfNeeded.
func (c *Coordinator) RegisterWork(registry *work.Registry, processor *work.Processor) {
	registry.Register(&work.WorkType{
		ID:      WorkTypeID,
		Timeout: c.cfg.JobTimeout,
		Execute: func(ctx context.Context, payload any) error {
			reason, _ := payload.(string)
			if reason == "" {
				reason = "job"
			}
			_, err := c.Run(ctx, reason)
			return err
		},
	})
	c.processor = processor
}

// Status is the refresh state as seen at a point in time
type Status struct {
	State      State      `json:"state"`
	Phase      Phase      `json:"phase"`
	MarketOpen bool       `json:"market_open"`
	LastRun    *RunResult `json:"last_run,omitempty"`
}

// Status returns the current refresh status
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	s, err := c.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()

	c.lastMu.RLock()
	last := c.lastRun
	c.lastMu.RUnlock()

	return &Status{
		State:      *s,
		Phase:      PhaseOf(c.clock, *s, now, c.cfg.MaxAge, c.cfg.AllowCatchUp),
		MarketOpen: c.clock.IsMarketOpen(now),
		LastRun:    last,
	}, nil
}

// ScheduleIfNeeded checks staleness, takes the lock without waiting and
// enqueues a refresh job. A held lock is reported as a skip, not an error.
func (c *Coordinator) ScheduleIfNeeded(ctx context.Context, reason string, opts ScheduleOptions) (*ScheduleResult, error) {
	result := &ScheduleResult{Reason: reason}

	if !opts.Force {
		s, err := c.state.Get(ctx)
		if err != nil {
			return nil, err
		}
		if !ShouldRefresh(c.clock, s.LastRefresh, c.now(), c.cfg.MaxAge, opts.AllowCatchUp) {
			result.Decision = DecisionFresh
			c.metrics.Scheduled.WithLabelValues(DecisionFresh).Inc()
			return result, nil
		}
	}

	if c.processor == nil {
		return nil, fmt.Errorf("refresh job is not registered on a work processor")
	}

	ok, err := c.state.AcquireLock(ctx, reason, c.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.log.Debug().Err(domain.ErrLockContention).Str("reason", reason).Msg("Refresh already in flight, skipping")
		c.metrics.LockContention.Inc()
		c.metrics.Scheduled.WithLabelValues(DecisionLocked).Inc()
		result.Decision = DecisionLocked
		return result, nil
	}

	id, err := c.processor.Enqueue(WorkTypeID, reason)
	if err != nil {
		if relErr := c.state.ReleaseLock(ctx); relErr != nil {
			c.log.Error().Err(relErr).Msg("Failed to release refresh lock after enqueue failure")
		}
		return nil, fmt.Errorf("failed to enqueue refresh: %w", err)
	}

	c.log.Info().Str("reason", reason).Str("job", id).Msg("Market refresh scheduled")
	c.metrics.Scheduled.WithLabelValues(DecisionScheduled).Inc()
	result.Decision = DecisionScheduled
	result.Scheduled = true
	result.JobID = id
	return result, nil
}

// RunNow acquires the lock and runs a refresh synchronously.
// It returns ErrLockContention when another refresh holds the lock.
func (c *Coordinator) RunNow(ctx context.Context, reason string) (*RunResult, error) {
	ok, err := c.state.AcquireLock(ctx, reason, c.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.metrics.LockContention.Inc()
		return nil, domain.ErrLockContention
	}
	return c.Run(ctx, reason)
}

// Run refreshes every tracked symbol. The caller must hold the lock; Run
// always releases it. last_refresh is recorded once the per-symbol phase is
// reached, however individual symbols fared. A run that fails before that
// leaves last_refresh alone so the next check retries. Per-symbol failures
// are reported in the result, never returned.
func (c *Coordinator) Run(ctx context.Context, reason string) (result *RunResult, err error) {
	start := c.now()
	result = &RunResult{
		Reason:    reason,
		StartedAt: start,
		Errors:    make(map[string]string),
		Updated:   []string{},
		Skipped:   []string{},
	}

	defer func() {
		// The lock must be cleared even if the run context was cancelled.
		cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		finished := c.now()
		result.FinishedAt = finished
		if err == nil {
			if recErr := c.state.RecordLastRefresh(cleanup, finished); recErr != nil {
				c.log.Error().Err(recErr).Msg("Failed to record last refresh")
			} else {
				c.metrics.LastRefresh.Set(float64(finished.Unix()))
			}
		}
		if relErr := c.state.ReleaseLock(cleanup); relErr != nil {
			c.log.Error().Err(relErr).Msg("Failed to release refresh lock")
		}

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "failed"
		case len(result.Errors) > 0:
			outcome = "partial"
		}
		c.metrics.Runs.WithLabelValues(reason, outcome).Inc()
		c.metrics.RunDuration.Observe(finished.Sub(start).Seconds())

		c.lastMu.Lock()
		c.lastRun = result
		c.lastMu.Unlock()
	}()

	symbols, err := c.trackedSymbols(ctx)
	if err != nil {
		return result, err
	}

	today := utils.DateOnly(c.clock.Today(start))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			result.Errors[symbol] = ctx.Err().Error()
			result.Symbols = append(result.Symbols, SymbolResult{Symbol: symbol, Status: SymbolError, Error: ctx.Err().Error()})
			continue
		}

		sr := c.refreshSymbol(ctx, symbol, today)
		result.Symbols = append(result.Symbols, sr)
		c.metrics.Symbols.WithLabelValues(string(sr.Status)).Inc()

		switch sr.Status {
		case SymbolUpdated:
			result.Updated = append(result.Updated, sr.Symbol)
		case SymbolSkipped:
			result.Skipped = append(result.Skipped, sr.Symbol)
		case SymbolError:
			result.Errors[sr.Symbol] = sr.Error
		}
	}

	c.log.Info().
		Str("reason", reason).
		Int("updated", len(result.Updated)).
		Int("skipped", len(result.Skipped)).
		Int("errors", len(result.Errors)).
		Dur("took", c.now().Sub(start)).
		Msg("Market refresh finished")

	return result, nil
}

// trackedSymbols is the union of ledger holdings and registered tickers,
// normalized to fully qualified symbols and sorted.
func (c *Coordinator) trackedSymbols(ctx context.Context) ([]string, error) {
	held, err := c.ledger.TrackedSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list held symbols: %w", err)
	}
	registered, err := c.tickers.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}

	seen := make(map[string]bool)
	var out []string
	for _, raw := range append(held, registered...) {
		parts := market_data.DeriveSymbolParts(raw)
		if parts.Symbol == "" || seen[parts.Symbol] {
			continue
		}
		seen[parts.Symbol] = true
		out = append(out, parts.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Coordinator) refreshSymbol(ctx context.Context, symbol string, today time.Time) (sr SymbolResult) {
	started := time.Now()
	sr = SymbolResult{Symbol: symbol}
	defer func() { sr.Took = time.Since(started) }()

	fail := func(err error) SymbolResult {
		sr.Status = SymbolError
		sr.Error = err.Error()
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol refresh failed")
		return sr
	}

	bounds, err := c.ledger.TxnBounds(ctx, symbol)
	if err != nil {
		return fail(err)
	}
	ticker, err := c.tickers.EnsureTicker(ctx, symbol, bounds, today)
	if err != nil {
		return fail(err)
	}
	latest, err := c.bars.LatestDate(ctx, ticker.Symbol)
	if err != nil {
		return fail(err)
	}

	window, ok := FetchWindow(*ticker, latest, today, c.cfg.HistoryWindow)
	if !ok {
		sr.Status = SymbolSkipped
		return sr
	}
	sr.Window = &window

	bars, err := c.gateway.Fetch(ctx, ticker.Symbol, window.Start, window.End)
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamDataUnavailable) {
			return fail(fmt.Errorf("no data returned for %s to %s: %w",
				utils.FormatDate(window.Start), utils.FormatDate(window.End), err))
		}
		return fail(err)
	}

	if len(bars) == 0 {
		return fail(fmt.Errorf("no bars returned for %s to %s: %w",
			utils.FormatDate(window.Start), utils.FormatDate(window.End), domain.ErrUpstreamDataUnavailable))
	}

	n, err := c.bars.UpsertBars(ctx, ticker.Symbol, bars)
	if err != nil {
		return fail(err)
	}
	if c.cache != nil {
		c.cache.Invalidate(ctx, ticker.Symbol)
	}

	sr.Status = SymbolUpdated
	sr.Rows = n
	return sr
}

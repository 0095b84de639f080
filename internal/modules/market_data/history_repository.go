package market_data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultRangeStart is used when a range query has no start date
var defaultRangeStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// HistoryRepository persists price bars keyed by (ticker, date).
// Writes are upserts so refetching a stored date overwrites it.
type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewHistoryRepository creates a new price history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "price_history").Logger(),
	}
}

const upsertBarSQL = `
	INSERT INTO price_bars (ticker, date, open, high, low, close, volume, timestamp, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ticker, date) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		timestamp = excluded.timestamp,
		updated_at = excluded.updated_at
`

// Upsert stores a single bar
func (r *HistoryRepository) Upsert(ctx context.Context, ticker string, bar domain.PriceBar) error {
	_, err := r.UpsertBars(ctx, ticker, []domain.PriceBar{bar})
	return err
}

// UpsertBars stores bars in one transaction and returns how many were written.
// Prices are rounded to cents.
func (r *HistoryRepository) UpsertBars(ctx context.Context, ticker string, bars []domain.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	done := utils.MeasureDBQuery("upsert_price_bars", r.log)
	updatedAt := r.now().Unix()

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertBarSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			var ts sql.NullInt64
			if bar.Timestamp != nil {
				ts = sql.NullInt64{Int64: bar.Timestamp.Unix(), Valid: true}
			}

			if _, err := stmt.ExecContext(ctx,
				ticker,
				utils.ToUnixDate(bar.Date),
				round2(bar.Open),
				round2(bar.High),
				round2(bar.Low),
				round2(bar.Close),
				bar.Volume,
				ts,
				updatedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert bar %s %s: %w", ticker, utils.FormatDate(bar.Date), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	done(int64(len(bars)))
	return len(bars), nil
}

// LatestDate returns the date of the newest stored bar, or nil when none exist
func (r *HistoryRepository) LatestDate(ctx context.Context, ticker string) (*time.Time, error) {
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(date) FROM price_bars WHERE ticker = ?", ticker,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest bar date for %s: %w", ticker, err)
	}
	if !latest.Valid {
		return nil, nil
	}
	d := utils.FromUnixDate(latest.Int64)
	return &d, nil
}

// LatestClose returns the close of the newest stored bar.
// ok is false when the ticker has no bars.
func (r *HistoryRepository) LatestClose(ctx context.Context, ticker string) (float64, bool, error) {
	var closePrice float64
	err := r.db.QueryRowContext(ctx,
		"SELECT close FROM price_bars WHERE ticker = ? ORDER BY date DESC LIMIT 1", ticker,
	).Scan(&closePrice)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest close for %s: %w", ticker, err)
	}
	return closePrice, true, nil
}

// GetBars returns daily bars for a ticker in [start, end], ascending
func (r *HistoryRepository) GetBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume, timestamp
		FROM price_bars
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, ticker, utils.ToUnixDate(start), utils.ToUnixDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	bars := make([]domain.PriceBar, 0)
	for rows.Next() {
		var bar domain.PriceBar
		var dateUnix int64
		var ts sql.NullInt64

		if err := rows.Scan(&dateUnix, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Date = utils.FromUnixDate(dateUnix)
		if ts.Valid {
			t := time.Unix(ts.Int64, 0).UTC()
			bar.Timestamp = &t
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// RangeQuery returns one series per distinct ticker for [start, end] at the
// requested interval. A zero start means 2000-01-01 and a zero end means today.
// Tickers without stored bars yield an empty series rather than an error.
func (r *HistoryRepository) RangeQuery(ctx context.Context, tickers []string, start, end time.Time, interval domain.Interval) ([]Series, error) {
	if interval == "" {
		interval = domain.IntervalDaily
	}
	if !interval.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedInterval, interval)
	}
	if start.IsZero() {
		start = defaultRangeStart
	}
	if end.IsZero() {
		end = utils.DateOnly(r.now())
	}

	seen := make(map[string]bool, len(tickers))
	result := make([]Series, 0, len(tickers))
	for _, ticker := range tickers {
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true

		daily, err := r.GetBars(ctx, ticker, start, end)
		if err != nil {
			return nil, err
		}
		bars, err := Resample(daily, interval)
		if err != nil {
			return nil, err
		}
		result = append(result, Series{Ticker: ticker, Interval: interval, Bars: bars})
	}

	return result, nil
}

// FindGaps returns weekdays in [start, end] that have no stored bar.
// Exchange holidays show up as gaps; callers decide whether that matters.
func (r *HistoryRepository) FindGaps(ctx context.Context, ticker string, start, end time.Time) ([]time.Time, error) {
	bars, err := r.GetBars(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	have := make(map[int64]bool, len(bars))
	for _, b := range bars {
		have[b.Date.Unix()] = true
	}

	var gaps []time.Time
	for d := utils.DateOnly(start); !d.After(utils.DateOnly(end)); d = d.AddDate(0, 0, 1) {
		if utils.IsWeekend(d) || have[d.Unix()] {
			continue
		}
		gaps = append(gaps, d)
	}
	return gaps, nil
}

// CountBars returns the number of stored bars for a ticker
func (r *HistoryRepository) CountBars(ctx context.Context, ticker string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM price_bars WHERE ticker = ?", ticker).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", ticker, err)
	}
	return n, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

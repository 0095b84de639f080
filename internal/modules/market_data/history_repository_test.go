package market_data

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/folio/internal/domain"
	testingpkg "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistoryRepo(t *testing.T) *HistoryRepository {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "history")
	repo := NewHistoryRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
	repo.now = func() time.Time { return time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC) }
	return repo
}

func TestHistoryRepository_UpsertRoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	bar := domain.PriceBar{Date: day(2024, 1, 2), Open: 45.1, High: 45.9, Low: 44.8, Close: 45.5, Volume: 1234567}
	require.NoError(t, repo.Upsert(ctx, "BHP.AX", bar))

	series, err := repo.RangeQuery(ctx, []string{"BHP.AX"}, day(2024, 1, 1), day(2024, 1, 31), domain.IntervalDaily)
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.Len(t, series[0].Bars, 1)

	got := series[0].Bars[0]
	assert.Equal(t, bar.Date, got.Date)
	assert.Equal(t, bar.Open, got.Open)
	assert.Equal(t, bar.High, got.High)
	assert.Equal(t, bar.Low, got.Low)
	assert.Equal(t, bar.Close, got.Close)
	assert.Equal(t, bar.Volume, got.Volume)

	updated := bar
	updated.Close = 46.2
	require.NoError(t, repo.Upsert(ctx, "BHP.AX", updated))

	count, err := repo.CountBars(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "second upsert must overwrite, not duplicate")

	closePrice, ok, err := repo.LatestClose(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 46.2, closePrice)
}

func TestHistoryRepository_RoundsToCents(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	require.NoError(t, repo.Upsert(ctx, "CBA.AX", domain.PriceBar{
		Date: day(2024, 1, 2), Open: 101.234, High: 102.999, Low: 100.001, Close: 101.555, Volume: 10,
	}))

	bars, err := repo.GetBars(ctx, "CBA.AX", day(2024, 1, 2), day(2024, 1, 2))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 101.23, bars[0].Open)
	assert.Equal(t, 103.0, bars[0].High)
	assert.Equal(t, 100.0, bars[0].Low)
	assert.Equal(t, 101.56, bars[0].Close)
}

func TestHistoryRepository_LatestDate(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	latest, err := repo.LatestDate(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = repo.UpsertBars(ctx, "BHP.AX", fiveDay())
	require.NoError(t, err)

	latest, err = repo.LatestDate(ctx, "BHP.AX")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, day(2024, 1, 5), *latest)
}

func TestHistoryRepository_LatestCloseMissingIsNotAnError(t *testing.T) {
	repo := newHistoryRepo(t)

	_, ok, err := repo.LatestClose(context.Background(), "NOPE.AX")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryRepository_RangeQuery(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	n, err := repo.UpsertBars(ctx, "BHP.AX", fiveDay())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	t.Run("weekly aggregate from store", func(t *testing.T) {
		series, err := repo.RangeQuery(ctx, []string{"BHP.AX"}, time.Time{}, time.Time{}, domain.IntervalWeekly)
		require.NoError(t, err)
		require.Len(t, series, 1)
		require.Len(t, series[0].Bars, 1)
		assert.Equal(t, 10.0, series[0].Bars[0].Open)
		assert.Equal(t, 10.1, series[0].Bars[0].Close)
		assert.Equal(t, int64(1500), series[0].Bars[0].Volume)
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		series, err := repo.RangeQuery(ctx, []string{"BHP.AX"}, day(2024, 1, 2), day(2024, 1, 4), domain.IntervalDaily)
		require.NoError(t, err)
		require.Len(t, series[0].Bars, 3)
		assert.Equal(t, day(2024, 1, 2), series[0].Bars[0].Date)
		assert.Equal(t, day(2024, 1, 4), series[0].Bars[2].Date)
	})

	t.Run("unknown ticker yields empty series", func(t *testing.T) {
		series, err := repo.RangeQuery(ctx, []string{"BHP.AX", "ZZZ.AX", "BHP.AX"}, time.Time{}, time.Time{}, domain.IntervalDaily)
		require.NoError(t, err)
		require.Len(t, series, 2)
		assert.Equal(t, "ZZZ.AX", series[1].Ticker)
		assert.Empty(t, series[1].Bars)
	})

	t.Run("unknown interval", func(t *testing.T) {
		_, err := repo.RangeQuery(ctx, []string{"BHP.AX"}, time.Time{}, time.Time{}, domain.Interval("5m"))
		assert.ErrorIs(t, err, domain.ErrUnsupportedInterval)

		for _, tickers := range [][]string{nil, {""}} {
			series, err := repo.RangeQuery(ctx, tickers, time.Time{}, time.Time{}, domain.Interval("5m"))
			assert.ErrorIs(t, err, domain.ErrUnsupportedInterval)
			assert.Nil(t, series)
		}
	})
}

func TestHistoryRepository_FindGaps(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	bars := fiveDay()
	_, err := repo.UpsertBars(ctx, "BHP.AX", append(bars[:2:2], bars[3:]...))
	require.NoError(t, err)

	gaps, err := repo.FindGaps(ctx, "BHP.AX", day(2024, 1, 1), day(2024, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 3), day(2024, 1, 8), day(2024, 1, 9)}, gaps)
}

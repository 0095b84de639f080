package market_data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data    map[string]string
	failGet bool
	deleted []string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

type mockPriceReader struct {
	mock.Mock
}

func (m *mockPriceReader) LatestClose(ctx context.Context, ticker string) (float64, bool, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func TestCachedPriceReader_ReadThrough(t *testing.T) {
	ctx := context.Background()
	primary := new(mockPriceReader)
	primary.On("LatestClose", ctx, "BHP.AX").Return(45.5, true, nil).Once()

	rdb := newFakeRedis()
	cache := NewCachedPriceReader(primary, rdb, time.Minute, zerolog.New(nil).Level(zerolog.Disabled))

	v, ok, err := cache.LatestClose(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 45.5, v)

	// Second read is served from redis; primary expectation is Once
	v, ok, err = cache.LatestClose(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 45.5, v)
	primary.AssertExpectations(t)

	cache.Invalidate(ctx, "BHP.AX")
	assert.Equal(t, []string{"folio:latest_close:BHP.AX"}, rdb.deleted)
	assert.Empty(t, rdb.data)
}

func TestCachedPriceReader_MissingPriceNotCached(t *testing.T) {
	ctx := context.Background()
	primary := new(mockPriceReader)
	primary.On("LatestClose", ctx, "NEW.AX").Return(0.0, false, nil).Twice()

	rdb := newFakeRedis()
	cache := NewCachedPriceReader(primary, rdb, time.Minute, zerolog.New(nil).Level(zerolog.Disabled))

	for i := 0; i < 2; i++ {
		_, ok, err := cache.LatestClose(ctx, "NEW.AX")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Empty(t, rdb.data)
	primary.AssertExpectations(t)
}

func TestCachedPriceReader_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	primary := new(mockPriceReader)
	primary.On("LatestClose", ctx, "BHP.AX").Return(45.5, true, nil)

	rdb := newFakeRedis()
	rdb.failGet = true
	cache := NewCachedPriceReader(primary, rdb, time.Minute, zerolog.New(nil).Level(zerolog.Disabled))

	v, ok, err := cache.LatestClose(ctx, "BHP.AX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 45.5, v)
}

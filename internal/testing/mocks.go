package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// GatewayCall records one Fetch invocation
type GatewayCall struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// MockPriceGateway is a mock implementation of domain.PriceGateway for testing
type MockPriceGateway struct {
	mu    sync.Mutex
	bars  map[string][]domain.PriceBar
	errs  map[string]error
	calls []GatewayCall
	delay time.Duration
}

// NewMockPriceGateway creates a new mock price gateway
func NewMockPriceGateway() *MockPriceGateway {
	return &MockPriceGateway{
		bars: make(map[string][]domain.PriceBar),
		errs: make(map[string]error),
	}
}

// SetBars sets the bars available for a symbol. Fetch returns those inside the window.
func (m *MockPriceGateway) SetBars(symbol string, bars []domain.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

// SetError makes Fetch fail for a symbol
func (m *MockPriceGateway) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SetDelay makes every Fetch block for d or until ctx is done
func (m *MockPriceGateway) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns the recorded Fetch calls
func (m *MockPriceGateway) Calls() []GatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GatewayCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Fetch implements domain.PriceGateway
func (m *MockPriceGateway) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GatewayCall{Symbol: symbol, Start: start, End: end})
	delay := m.delay
	err := m.errs[symbol]
	all := m.bars[symbol]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var out []domain.PriceBar
	for _, b := range all {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mock: %s: %w", symbol, domain.ErrUpstreamDataUnavailable)
	}
	return out, nil
}

// MockMetadataProvider is a mock implementation of domain.MetadataProvider for testing
type MockMetadataProvider struct {
	mu    sync.Mutex
	meta  map[string]domain.SecurityMetadata
	err   error
	calls int
}

// NewMockMetadataProvider creates a new mock metadata provider
func NewMockMetadataProvider() *MockMetadataProvider {
	return &MockMetadataProvider{meta: make(map[string]domain.SecurityMetadata)}
}

// SetMetadata sets the metadata returned for a symbol
func (m *MockMetadataProvider) SetMetadata(symbol string, meta domain.SecurityMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[symbol] = meta
}

// SetError sets the error to return
func (m *MockMetadataProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// CallCount returns how many lookups were made
func (m *MockMetadataProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Metadata implements domain.MetadataProvider
func (m *MockMetadataProvider) Metadata(ctx context.Context, symbol string) (domain.SecurityMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.SecurityMetadata{}, m.err
	}
	return m.meta[symbol], nil
}

// MockLatestPriceReader is a mock implementation of domain.LatestPriceReader for testing
type MockLatestPriceReader struct {
	mu     sync.RWMutex
	prices map[string]float64
	err    error
}

// NewMockLatestPriceReader creates a new mock price reader
func NewMockLatestPriceReader() *MockLatestPriceReader {
	return &MockLatestPriceReader{prices: make(map[string]float64)}
}

// SetPrice sets the latest close for a ticker
func (m *MockLatestPriceReader) SetPrice(ticker string, close float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = close
}

// SetError sets the error to return
func (m *MockLatestPriceReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LatestClose implements domain.LatestPriceReader
func (m *MockLatestPriceReader) LatestClose(ctx context.Context, ticker string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.prices[ticker]
	return v, ok, nil
}

var (
	_ domain.PriceGateway      = (*MockPriceGateway)(nil)
	_ domain.MetadataProvider  = (*MockMetadataProvider)(nil)
	_ domain.LatestPriceReader = (*MockLatestPriceReader)(nil)
)

package domain

import (
	"context"
	"time"
)

// PriceGateway fetches OHLCV bars from an upstream provider.
// Implementations return an error wrapping ErrUpstreamDataUnavailable when the
// provider has no bars for the window. The end date is inclusive.
type PriceGateway interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]PriceBar, error)
}

// SecurityMetadata is descriptive data used to enrich a holding
type SecurityMetadata struct {
	Name   string
	Sector string
}

// MetadataProvider looks up descriptive metadata for a symbol
type MetadataProvider interface {
	Metadata(ctx context.Context, symbol string) (SecurityMetadata, error)
}

// LatestPriceReader returns the most recent close for a ticker.
// ok is false when no bar is stored; that is not an error.
type LatestPriceReader interface {
	LatestClose(ctx context.Context, ticker string) (close float64, ok bool, err error)
}

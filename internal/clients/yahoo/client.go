// Package yahoo implements the price gateway against the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNoData is returned when the chart API has no bars for the requested window
var ErrNoData = fmt.Errorf("yahoo: no data returned: %w", domain.ErrUpstreamDataUnavailable)

// DefaultRateLimit is requests per second when none is configured
const DefaultRateLimit = 2

// Client fetches daily OHLCV bars and instrument metadata
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL overrides the API host (tests, proxies)
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit sets requests per second shared by all callers
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a new chart API client
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   "https://query1.finance.yahoo.com",
		http:      &http.Client{Timeout: 20 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		userAgent: "Mozilla/5.0 (compatible; folio/1.0)",
		log:       log.With().Str("client", "yahoo").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		ExchangeName       string  `json:"exchangeName"`
		ExchangeTimezone   string  `json:"exchangeTimezoneName"`
		GMTOffset          int     `json:"gmtoffset"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		InstrumentType     string  `json:"instrumentType"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Fetch returns split/dividend adjusted daily bars for [start, end], end inclusive.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	start, end = utils.DateOnly(start), utils.DateOnly(end)
	if end.Before(start) {
		return nil, fmt.Errorf("invalid window for %s: %s > %s", symbol, utils.FormatDate(start), utils.FormatDate(end))
	}

	// Pad by a day each side; bars are filtered by exchange-local date below.
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.AddDate(0, 0, -1).Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 2).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")

	result, err := c.chart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	bars := toBars(result, start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s..%s: %w", symbol, utils.FormatDate(start), utils.FormatDate(end), ErrNoData)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("start", utils.FormatDate(start)).
		Str("end", utils.FormatDate(end)).
		Int("bars", len(bars)).
		Msg("Fetched price history")

	return bars, nil
}

// Metadata returns the display name for a symbol.
// The chart API carries no sector; Sector is left empty so callers keep any existing value.
func (c *Client) Metadata(ctx context.Context, symbol string) (domain.SecurityMetadata, error) {
	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")

	result, err := c.chart(ctx, symbol, params)
	if err != nil {
		return domain.SecurityMetadata{}, err
	}

	name := result.Meta.LongName
	if name == "" {
		name = result.Meta.ShortName
	}
	return domain.SecurityMetadata{Name: name}, nil
}

func (c *Client) chart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read yahoo response: %w", err)
	}

	var parsed chartResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("yahoo returned status %d for %s", resp.StatusCode, symbol)
		}
		return nil, fmt.Errorf("failed to parse yahoo response: %w", jsonErr)
	}

	if parsed.Chart.Error != nil {
		if parsed.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %s: %w", symbol, parsed.Chart.Error.Description, ErrNoData)
		}
		return nil, fmt.Errorf("yahoo error for %s: %s: %s", symbol, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo returned status %d for %s", resp.StatusCode, symbol)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	return &parsed.Chart.Result[0], nil
}

// toBars converts the columnar chart payload into bars dated in the exchange's
// local calendar, dropping rows with missing prices or outside [start, end].
func toBars(r *chartResult, start, end time.Time) []domain.PriceBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	loc := time.FixedZone("exchange", r.Meta.GMTOffset)
	if r.Meta.ExchangeTimezone != "" {
		if l, err := time.LoadLocation(r.Meta.ExchangeTimezone); err == nil {
			loc = l
		}
	}

	bars := make([]domain.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, high, low, closePrice := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || closePrice == nil {
			continue
		}

		stamp := time.Unix(ts, 0).In(loc)
		date := utils.DateOnly(stamp)
		if date.Before(start) || date.After(end) {
			continue
		}

		factor := 1.0
		if a := at(adj, i); a != nil && *closePrice != 0 {
			factor = *a / *closePrice
		}

		var volume int64
		if i < len(q.Volume) && q.Volume[i] != nil {
			volume = *q.Volume[i]
		}

		utcStamp := stamp.UTC()
		bar := domain.PriceBar{
			Date:      date,
			Timestamp: &utcStamp,
			Open:      *open * factor,
			High:      *high * factor,
			Low:       *low * factor,
			Close:     *closePrice * factor,
			Volume:    volume,
		}

		// Same-day duplicates (intraday bar for today) keep the latest
		if n := len(bars); n > 0 && bars[n-1].Date.Equal(date) {
			bars[n-1] = bar
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

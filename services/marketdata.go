package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Bar is one 5-minute OHLCV bar for a symbol
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	RangePct  float64
}

// BarFetcher pulls the latest 5-minute bar per symbol from the market data API
type BarFetcher struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewBarFetcher creates a bar fetcher against the given API base URL
func NewBarFetcher(baseURL, apiKey string) *BarFetcher {
	return &BarFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// barResponse represents the market data API response structure
type barResponse struct {
	Bars []struct {
		Symbol    string  `json:"symbol"`
		Timestamp string  `json:"ts_event"`
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		Volume    int64   `json:"volume"`
	} `json:"bars"`
}

// LatestBar fetches the most recent 5-minute bar for symbol. A nil bar with
// nil error means the provider had no data for the symbol (thin or halted
// names near the open), which callers skip rather than fail on.
func (f *BarFetcher) LatestBar(symbol string) (*Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/bars/latest?symbol=%s&interval=5m", f.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bar fetch for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bar fetch for %s returned %s: %s", symbol, resp.Status, string(body))
	}

	var parsed barResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("bar response for %s invalid: %w", symbol, err)
	}
	if len(parsed.Bars) == 0 {
		return nil, nil
	}

	// The provider returns bars oldest-first; take the latest.
	raw := parsed.Bars[len(parsed.Bars)-1]
	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("bar timestamp for %s invalid: %w", symbol, err)
	}

	bar := &Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      raw.Open,
		High:      raw.High,
		Low:       raw.Low,
		Close:     raw.Close,
		Volume:    raw.Volume,
		RangePct:  RangePct(raw.High, raw.Low, raw.Close),
	}
	return bar, nil
}

// RangePct is the bar's high-low range as a fraction of the close, the
// volatility proxy carried through the whole pipeline. Zero when the close
// is zero.
func RangePct(high, low, close float64) float64 {
	if close == 0 {
		return 0
	}
	return (high - low) / close
}

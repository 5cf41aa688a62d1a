package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"MarketVault/internal/model"
)

// BrokerSource fetches OHLCV bars from a broker terminal's REST bridge.
type BrokerSource struct {
	SourceID  string
	BaseURL   string
	Symbol    string
	Timeframe string // "D1", "H4", ...
	Bars      int
	APIKey    string
	Client    *http.Client
}

// NewBrokerSource creates a broker bar fetcher with optional proxy support.
func NewBrokerSource(sourceID, baseURL, symbol, timeframe string, bars int, apiKey string, timeout time.Duration, proxyURL string) *BrokerSource {
	if timeframe == "" {
		timeframe = "D1"
	}
	if bars <= 0 {
		bars = 300
	}
	return &BrokerSource{
		SourceID:  sourceID,
		BaseURL:   baseURL,
		Symbol:    symbol,
		Timeframe: timeframe,
		Bars:      bars,
		APIKey:    apiKey,
		Client:    newHTTPClient(timeout, proxyURL),
	}
}

func (f *BrokerSource) ID() string { return f.SourceID }

// brokerBar is the expected JSON shape from the terminal bridge.
type brokerBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Fetch retrieves the most recent bars, sorted chronologically with duplicate
// timestamps dropped (last wins), matching the terminal's own export rules.
func (f *BrokerSource) Fetch(ctx context.Context) (*model.Dataset, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bars?symbol=%s&timeframe=%s&limit=%d",
		f.BaseURL, f.Symbol, f.Timeframe, f.Bars)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, Errorf(KindNonRetryable, "build request: %v", err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, Errorf(KindRetryable, "fetch bars %s %s: %v", f.Symbol, f.Timeframe, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, string(body))
	}
	var bars []brokerBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, Errorf(KindRetryable, "decode bars %s %s: %v", f.Symbol, f.Timeframe, err)
	}
	if len(bars) == 0 {
		return nil, Errorf(KindRetryable, "no bars returned for %s %s", f.Symbol, f.Timeframe)
	}

	// Stable so that among duplicate timestamps the payload's last bar wins.
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })

	ds := &model.Dataset{
		SourceID:  f.SourceID,
		FetchedAt: time.Now().UTC(),
		Columns:   model.BarColumns,
		Records:   make([]model.Record, 0, len(bars)),
	}
	for _, b := range bars {
		rec := model.Bar(time.Unix(b.Timestamp, 0).UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if n := len(ds.Records); n > 0 && ds.Records[n-1].Time.Equal(rec.Time) {
			ds.Records[n-1] = rec // duplicate timestamp, keep last
			continue
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

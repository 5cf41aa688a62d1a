package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"MarketVault/internal/model"
)

// SeriesSource fetches a macro observation series from a FRED-style REST API.
type SeriesSource struct {
	SourceID         string
	BaseURL          string
	SeriesID         string
	APIKey           string
	ObservationStart string
	Client           *http.Client
}

// NewSeriesSource creates a series fetcher with optional proxy support.
func NewSeriesSource(sourceID, baseURL, seriesID, apiKey, observationStart string, timeout time.Duration, proxyURL string) *SeriesSource {
	if baseURL == "" {
		baseURL = "https://api.stlouisfed.org"
	}
	if observationStart == "" {
		observationStart = "2010-01-01"
	}
	return &SeriesSource{
		SourceID:         sourceID,
		BaseURL:          baseURL,
		SeriesID:         seriesID,
		APIKey:           apiKey,
		ObservationStart: observationStart,
		Client:           newHTTPClient(timeout, proxyURL),
	}
}

func (f *SeriesSource) ID() string { return f.SourceID }

// seriesResponse is the observation payload shape.
type seriesResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Fetch retrieves all observations since ObservationStart. The API encodes a
// missing observation as the literal value "."; those rows keep their
// timestamp but carry no value field.
func (f *SeriesSource) Fetch(ctx context.Context) (*model.Dataset, error) {
	q := url.Values{}
	q.Set("series_id", f.SeriesID)
	q.Set("observation_start", f.ObservationStart)
	q.Set("file_type", "json")
	if f.APIKey != "" {
		q.Set("api_key", f.APIKey)
	}
	endpoint := f.BaseURL + "/fred/series/observations?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, Errorf(KindNonRetryable, "build request: %v", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, Errorf(KindRetryable, "fetch series %s: %v", f.SeriesID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Errorf(KindRetryable, "read series %s: %v", f.SeriesID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, string(body))
	}

	var payload seriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Errorf(KindRetryable, "decode series %s: %v", f.SeriesID, err)
	}
	if len(payload.Observations) == 0 {
		return nil, Errorf(KindRetryable, "series %s: no observations returned", f.SeriesID)
	}

	ds := &model.Dataset{
		SourceID:  f.SourceID,
		FetchedAt: time.Now().UTC(),
		Columns:   []string{"value"},
		Records:   make([]model.Record, 0, len(payload.Observations)),
	}
	for _, obs := range payload.Observations {
		t, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			return nil, Errorf(KindRetryable, "series %s: bad date %q", f.SeriesID, obs.Date)
		}
		rec := model.Record{Time: t, Fields: map[string]float64{}}
		if obs.Value != "." && obs.Value != "" {
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				return nil, Errorf(KindRetryable, "series %s: bad value %q at %s", f.SeriesID, obs.Value, obs.Date)
			}
			rec.Fields["value"] = v
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

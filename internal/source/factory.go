package source

import (
	"fmt"
	"time"

	"MarketVault/internal/config"
)

// NewFromConfig builds a source adapter from its configuration entry.
func NewFromConfig(c config.SourceConfig, proxyURL string) (Source, error) {
	timeout := time.Duration(c.TimeoutSeconds) * time.Second
	switch c.Type {
	case "series":
		return NewSeriesSource(c.ID, c.BaseURL, c.SeriesID, c.APIKey, c.ObservationStart, timeout, proxyURL), nil
	case "broker":
		return NewBrokerSource(c.ID, c.BaseURL, c.Symbol, c.Timeframe, c.Bars, c.APIKey, timeout, proxyURL), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}

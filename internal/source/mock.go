package source

import (
	"context"
	"time"

	"MarketVault/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	SourceID string
	Data     *model.Dataset
	Err      error
	Calls    int
}

func (m *MockSource) ID() string { return m.SourceID }

func (m *MockSource) Fetch(_ context.Context) (*model.Dataset, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Data != nil {
		return m.Data, nil
	}
	return GenerateBars(m.SourceID, 1.10, 10), nil
}

// GenerateBars builds a deterministic bar dataset around a base price.
func GenerateBars(sourceID string, basePrice float64, count int) *model.Dataset {
	ds := &model.Dataset{
		SourceID:  sourceID,
		FetchedAt: time.Now().UTC(),
		Columns:   model.BarColumns,
		Records:   make([]model.Record, 0, count),
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		ds.Records = append(ds.Records, model.Bar(
			start.AddDate(0, 0, i), p*0.999, p*1.005, p*0.995, p, 1000000))
	}
	return ds
}

package model

import "time"

// Record is a single timestamped row of an acquired dataset. Numeric values
// are keyed by column name; a missing value is simply absent from the map.
type Record struct {
	Time   time.Time
	Fields map[string]float64
}

// BarColumns is the canonical column order for OHLCV price bars.
var BarColumns = []string{"open", "high", "low", "close", "volume"}

// Bar builds a price-bar record.
func Bar(t time.Time, open, high, low, closePrice, volume float64) Record {
	return Record{
		Time: t,
		Fields: map[string]float64{
			"open":   open,
			"high":   high,
			"low":    low,
			"close":  closePrice,
			"volume": volume,
		},
	}
}

// Dataset is the ordered record collection acquired from one source in one run.
type Dataset struct {
	SourceID  string
	FetchedAt time.Time
	Columns   []string
	Records   []Record
}

// Rows returns the record count.
func (d *Dataset) Rows() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// LatestMarker returns the timestamp of the last record as an ISO-8601 UTC
// string, or "" for an empty dataset. Records are expected to be ordered, so
// the last record is the newest.
func (d *Dataset) LatestMarker() string {
	if d.Rows() == 0 {
		return ""
	}
	return d.Records[len(d.Records)-1].Time.UTC().Format("2006-01-02T15:04:05Z")
}

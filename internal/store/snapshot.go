package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"MarketVault/internal/model"
)

const timeColumn = "time_utc"

// SnapshotName is the "latest" CSV artifact name for a source.
func SnapshotName(sourceID string) string {
	return strings.ToLower(sourceID) + ".csv"
}

// SnapshotArchiveName is the dated archive CSV artifact name for a source.
func SnapshotArchiveName(sourceID, runTag string) string {
	return strings.ToLower(sourceID) + "_" + runTag + ".csv"
}

// SaveDataset persists a dataset as CSV per the write policy. Timestamps are
// stored as ISO-8601 Z strings; missing field values become empty cells.
func (s *Store) SaveDataset(p WritePolicy, ds *model.Dataset) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{timeColumn}, ds.Columns...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	row := make([]string, len(header))
	for _, rec := range ds.Records {
		row[0] = rec.Time.UTC().Format("2006-01-02T15:04:05Z")
		for i, col := range ds.Columns {
			if v, ok := rec.Fields[col]; ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode snapshot row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.WriteFile(p, buf.Bytes())
}

// LoadDataset reads the named CSV snapshot back into a dataset. A missing or
// malformed file yields an error; callers using snapshots as a fallback cache
// treat any error as "no cache".
func (s *Store) LoadDataset(name, sourceID string) (*model.Dataset, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", name, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] != timeColumn {
		return nil, fmt.Errorf("snapshot %s: missing %s header", name, timeColumn)
	}

	columns := rows[0][1:]
	ds := &model.Dataset{
		SourceID: sourceID,
		Columns:  append([]string(nil), columns...),
		Records:  make([]model.Record, 0, len(rows)-1),
	}
	for i, row := range rows[1:] {
		t, err := time.Parse("2006-01-02T15:04:05Z", row[0])
		if err != nil {
			return nil, fmt.Errorf("snapshot %s row %d: bad timestamp %q", name, i+1, row[0])
		}
		rec := model.Record{Time: t, Fields: make(map[string]float64, len(columns))}
		for j, col := range columns {
			cell := row[j+1]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("snapshot %s row %d: bad value %q in %s", name, i+1, cell, col)
			}
			rec.Fields[col] = v
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

package recorder

import (
	"path/filepath"
	"testing"

	"MarketVault/internal/model"
)

func TestSQLiteRecorder_RecordFetchRun(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	m := &model.RunManifest{
		AsOfUTC: "2025-06-01T12:00:00Z",
		Sources: map[string]model.SourceStatus{
			"EURUSD_D1": {OK: true, Rows: 500, LatestMarker: "2025-06-01T00:00:00Z"},
			"DGS10":     {OK: true, Rows: 120, UsedCache: true, Error: "timeout"},
		},
		StaleSources: []string{"DGS10"},
		Notes:        "served cached snapshot for: DGS10",
	}
	if err := r.RecordFetchRun(m, model.ClassWarn); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM fetch_runs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("fetch_runs count = %d", count)
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM source_statuses").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("source_statuses count = %d", count)
	}

	var class string
	var stale int
	if err := r.db.QueryRow("SELECT classification, stale_count FROM fetch_runs").Scan(&class, &stale); err != nil {
		t.Fatal(err)
	}
	if class != "WARN" || stale != 1 {
		t.Errorf("class=%s stale=%d", class, stale)
	}
}

func TestSQLiteRecorder_RecordPipelineRun(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rec := &model.PipelineRunRecord{
		RunID:   "2025-06-01T12-00-00Z",
		RunUUID: "abc-123",
		Status:  model.StatusError,
		Steps: []model.StepResult{
			{Step: "capture", ExitCode: 0, OK: true},
			{Step: "extract", ExitCode: 1, OK: false},
		},
		Error: "extract failed",
	}
	if err := r.RecordPipelineRun(rec); err != nil {
		t.Fatal(err)
	}

	var status string
	var total, ok int
	if err := r.db.QueryRow("SELECT status, steps_total, steps_ok FROM pipeline_runs").Scan(&status, &total, &ok); err != nil {
		t.Fatal(err)
	}
	if status != "ERROR" || total != 2 || ok != 1 {
		t.Errorf("status=%s total=%d ok=%d", status, total, ok)
	}
}

func TestSQLiteRecorder_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	r, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	// Migrations are idempotent across reopen.
	r2, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	r2.Close()
}

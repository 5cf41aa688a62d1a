package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"MarketVault/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (dashboards read while
	// the daemon writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			asof_utc       TEXT,
			classification TEXT,
			source_count   INTEGER,
			stale_count    INTEGER,
			failed_count   INTEGER,
			notes          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_runs_ts ON fetch_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS source_statuses (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        INTEGER NOT NULL,
			source_id     TEXT NOT NULL,
			ok            INTEGER,
			rows          INTEGER,
			latest_marker TEXT,
			used_cache    INTEGER,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_statuses_run ON source_statuses(run_id)`,

		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			run_id       TEXT,
			run_uuid     TEXT,
			status       TEXT,
			steps_total  INTEGER,
			steps_ok     INTEGER,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_ts ON pipeline_runs(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetchRun(m *model.RunManifest, class model.Classification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := 0
	for _, st := range m.Sources {
		if !st.OK {
			failed++
		}
	}

	res, err := r.db.Exec(`INSERT INTO fetch_runs
		(timestamp, asof_utc, classification, source_count, stale_count, failed_count, notes)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), m.AsOfUTC, string(class),
		len(m.Sources), len(m.StaleSources), failed, m.Notes,
	)
	if err != nil {
		return err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for id, st := range m.Sources {
		if _, err := r.db.Exec(`INSERT INTO source_statuses
			(run_id, source_id, ok, rows, latest_marker, used_cache, error)
			VALUES (?,?,?,?,?,?,?)`,
			runID, id, boolInt(st.OK), st.Rows, st.LatestMarker, boolInt(st.UsedCache), st.Error,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordPipelineRun(rec *model.PipelineRunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stepsOK := 0
	for _, s := range rec.Steps {
		if s.OK {
			stepsOK++
		}
	}

	_, err := r.db.Exec(`INSERT INTO pipeline_runs
		(timestamp, run_id, run_uuid, status, steps_total, steps_ok, error)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), rec.RunID, rec.RunUUID, string(rec.Status),
		len(rec.Steps), stepsOK, rec.Error,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

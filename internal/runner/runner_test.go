package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"MarketVault/internal/model"
	"MarketVault/internal/source"
	"MarketVault/internal/store"
	"MarketVault/internal/validate"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func barSpec(src source.Source) SourceSpec {
	return SourceSpec{
		Source:   src,
		Rules:    validate.BarRules(0.5, 2.0, 0.1),
		Attempts: 3,
	}
}

func TestRun_FreshFetch(t *testing.T) {
	st := newTestStore(t)
	data := source.GenerateBars("EURUSD_D1", 1.10, 500)
	mock := &source.MockSource{SourceID: "EURUSD_D1", Data: data}
	orc := New(st, []SourceSpec{barSpec(mock)}, Options{KeepRunManifest: true, KeepDailySnapshot: true})

	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stSrc := m.Sources["EURUSD_D1"]
	if !stSrc.OK || stSrc.UsedCache {
		t.Fatalf("status = %+v", stSrc)
	}
	if stSrc.Rows != 500 {
		t.Errorf("rows = %d, want 500", stSrc.Rows)
	}
	if stSrc.LatestMarker != data.LatestMarker() {
		t.Errorf("latest marker = %q, want %q", stSrc.LatestMarker, data.LatestMarker())
	}
	if got := model.Classify(m); got != model.ClassOK {
		t.Errorf("classification = %s", got)
	}
	if m.Notes != "" {
		t.Errorf("clean run should have empty notes, got %q", m.Notes)
	}

	// Snapshot and manifest are on disk; the snapshot round-trips.
	if !st.Exists(ManifestName) {
		t.Error("manifest not written")
	}
	loaded, err := st.LoadDataset(store.SnapshotName("EURUSD_D1"), "EURUSD_D1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Rows() != 500 || loaded.LatestMarker() != data.LatestMarker() {
		t.Errorf("snapshot round trip: rows=%d latest=%s", loaded.Rows(), loaded.LatestMarker())
	}
}

func TestRun_CacheFallback(t *testing.T) {
	st := newTestStore(t)
	data := source.GenerateBars("EURUSD_D1", 1.10, 500)

	// First run succeeds and seeds the cache.
	mock := &source.MockSource{SourceID: "EURUSD_D1", Data: data}
	orc := New(st, []SourceSpec{barSpec(mock)}, Options{KeepErrorReport: true})
	if _, err := orc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Second run fails; the cached snapshot must be served.
	mock.Err = source.Errorf(source.KindNonRetryable, "terminal unreachable")
	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stSrc := m.Sources["EURUSD_D1"]
	if !stSrc.OK || !stSrc.UsedCache {
		t.Fatalf("status = %+v, want ok with used_cache", stSrc)
	}
	if stSrc.Rows != 500 {
		t.Errorf("rows = %d, want cached 500", stSrc.Rows)
	}
	if stSrc.Error == "" {
		t.Error("fallback should keep the original failure reason")
	}
	if len(m.StaleSources) != 1 || m.StaleSources[0] != "EURUSD_D1" {
		t.Errorf("stale_sources = %v", m.StaleSources)
	}
	if got := model.Classify(m); got != model.ClassWarn {
		t.Errorf("classification = %s, want WARN", got)
	}
	if !strings.Contains(m.Notes, "served cached snapshot") {
		t.Errorf("notes = %q", m.Notes)
	}

	// The cache itself was not clobbered by the failed run.
	loaded, err := st.LoadDataset(store.SnapshotName("EURUSD_D1"), "EURUSD_D1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Rows() != 500 {
		t.Errorf("cache rows = %d after failed run", loaded.Rows())
	}
}

func TestRun_FailureWithoutCache(t *testing.T) {
	st := newTestStore(t)
	mock := &source.MockSource{
		SourceID: "EURUSD_D1",
		Err:      source.Errorf(source.KindRetryable, "connection refused"),
	}
	spec := barSpec(mock)
	spec.Delay = time.Millisecond
	orc := New(st, []SourceSpec{spec}, Options{KeepErrorReport: true})

	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stSrc := m.Sources["EURUSD_D1"]
	if stSrc.OK {
		t.Fatalf("status = %+v, want failure", stSrc)
	}
	if stSrc.Rows != 0 || stSrc.LatestMarker != "" {
		t.Errorf("failed source should report 0 rows and empty marker: %+v", stSrc)
	}
	if mock.Calls != 3 {
		t.Errorf("calls = %d, want full retry budget of 3", mock.Calls)
	}
	if got := model.Classify(m); got != model.ClassError {
		t.Errorf("classification = %s, want ERROR", got)
	}
	if !strings.Contains(m.Notes, "fetch failed with no usable cache") {
		t.Errorf("notes = %q", m.Notes)
	}

	// No snapshot was written, but the dated error report was.
	if st.Exists(store.SnapshotName("EURUSD_D1")) {
		t.Error("failed fetch must not write a snapshot")
	}
	tag := time.Now().UTC().Format("20060102")
	if !st.Exists("fetch_error_" + tag + ".json") {
		t.Error("error report not written")
	}
}

func TestRun_NonRetryableStopsEarly(t *testing.T) {
	st := newTestStore(t)
	mock := &source.MockSource{
		SourceID: "EURUSD_D1",
		Err:      source.Errorf(source.KindNonRetryable, "invalid api key"),
	}
	orc := New(st, []SourceSpec{barSpec(mock)}, Options{})

	if _, err := orc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mock.Calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable failure", mock.Calls)
	}
}

func TestRun_AllowEmptyOnError(t *testing.T) {
	st := newTestStore(t)
	mock := &source.MockSource{
		SourceID: "DGS10",
		Err:      source.Errorf(source.KindNonRetryable, "upstream gone"),
	}
	spec := SourceSpec{
		Source:     mock,
		Rules:      validate.SeriesRules(0, 100, 0.5),
		Attempts:   1,
		AllowEmpty: true,
	}
	orc := New(st, []SourceSpec{spec}, Options{})

	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stSrc := m.Sources["DGS10"]
	if !stSrc.OK || stSrc.Rows != 0 || stSrc.UsedCache {
		t.Fatalf("status = %+v, want ok with 0 rows", stSrc)
	}
	if !st.Exists(store.SnapshotName("DGS10")) {
		t.Error("empty snapshot not written")
	}
}

func TestRun_ValidationFailureFallsBack(t *testing.T) {
	st := newTestStore(t)
	good := source.GenerateBars("EURUSD_D1", 1.10, 100)
	mock := &source.MockSource{SourceID: "EURUSD_D1", Data: good}
	orc := New(st, []SourceSpec{barSpec(mock)}, Options{})
	if _, err := orc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Corrupt data passes the fetch but fails range validation.
	bad := source.GenerateBars("EURUSD_D1", 1.10, 100)
	bad.Records[50].Fields["close"] = -7
	bad.Records[50].Fields["low"] = -7
	mock.Data = bad

	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stSrc := m.Sources["EURUSD_D1"]
	if !stSrc.OK || !stSrc.UsedCache {
		t.Fatalf("status = %+v, want cache fallback on validation failure", stSrc)
	}
	if !strings.Contains(stSrc.Error, "range") {
		t.Errorf("error = %q, want the violated rule name", stSrc.Error)
	}

	// The good snapshot survived.
	loaded, err := st.LoadDataset(store.SnapshotName("EURUSD_D1"), "EURUSD_D1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Records[50].Fields["close"] == -7 {
		t.Error("invalid data must never overwrite the cached snapshot")
	}
}

func TestRun_OneFailureDoesNotAbortOthers(t *testing.T) {
	st := newTestStore(t)
	okSrc := &source.MockSource{SourceID: "EURUSD_D1", Data: source.GenerateBars("EURUSD_D1", 1.10, 10)}
	badSrc := &source.MockSource{SourceID: "XAUUSD_D1", Err: source.Errorf(source.KindNonRetryable, "nope")}
	orc := New(st, []SourceSpec{barSpec(badSrc), barSpec(okSrc)}, Options{})

	m, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !m.Sources["EURUSD_D1"].OK {
		t.Error("healthy source should succeed despite the other failing")
	}
	if m.Sources["XAUUSD_D1"].OK {
		t.Error("failed source reported ok")
	}
	if got := model.Classify(m); got != model.ClassError {
		t.Errorf("classification = %s", got)
	}
}

func TestRun_ManifestIsStable(t *testing.T) {
	st := newTestStore(t)
	data := source.GenerateBars("EURUSD_D1", 1.10, 20)
	mock := &source.MockSource{SourceID: "EURUSD_D1", Data: data}
	orc := New(st, []SourceSpec{barSpec(mock)}, Options{})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orc.now = func() time.Time { return fixed }

	m1, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m2, err := orc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m1.AsOfUTC != "2025-06-01T12:00:00Z" {
		t.Errorf("asof = %q", m1.AsOfUTC)
	}
	if m1.AsOfUTC != m2.AsOfUTC || m1.Sources["EURUSD_D1"] != m2.Sources["EURUSD_D1"] {
		t.Error("identical inputs should produce identical manifests")
	}
}

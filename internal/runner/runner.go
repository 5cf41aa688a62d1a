// Package runner drives one fetch run across all configured sources:
// retry-wrapped acquisition, validation, atomic persistence, cache fallback,
// and manifest aggregation.
package runner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"MarketVault/internal/model"
	"MarketVault/internal/retry"
	"MarketVault/internal/source"
	"MarketVault/internal/store"
	"MarketVault/internal/validate"
)

// SourceSpec pairs a source adapter with its retry budget and validation rules.
type SourceSpec struct {
	Source   source.Source
	Rules    validate.Rules
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	// AllowEmpty permits persisting an empty dataset instead of reporting
	// failure when the fetch fails and no cache exists. Off unless configured.
	AllowEmpty bool
}

// Options are the run-level artifact retention policies.
type Options struct {
	KeepRunManifest   bool
	KeepErrorReport   bool
	KeepDailySnapshot bool
}

// Orchestrator executes sources sequentially; failure of one source never
// aborts the others. The accumulating manifest is owned by the orchestrator
// for the duration of one run.
type Orchestrator struct {
	store *store.Store
	specs []SourceSpec
	opts  Options
	now   func() time.Time
}

// New creates an Orchestrator over the given store and source specs.
func New(st *store.Store, specs []SourceSpec, opts Options) *Orchestrator {
	return &Orchestrator{store: st, specs: specs, opts: opts, now: time.Now}
}

// ManifestName is the "latest" manifest artifact, overwritten every run.
const ManifestName = "fetch_manifest.json"

func manifestArchiveName(tag string) string { return "fetch_manifest_" + tag + ".json" }
func errorReportName(tag string) string    { return "fetch_error_" + tag + ".json" }

// errorReport is the dated failure artifact kept for audit.
type errorReport struct {
	AsOfUTC string `json:"asof_utc"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// Run fetches every source and writes the run manifest. The returned error is
// non-nil only for persistence failures, which indicate an environment problem
// and terminate the run; per-source fetch and validation failures are absorbed
// into the manifest.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunManifest, error) {
	runTag := o.now().UTC().Format("20060102")
	manifest := &model.RunManifest{
		Sources:      make(map[string]model.SourceStatus, len(o.specs)),
		StaleSources: []string{},
	}

	for _, spec := range o.specs {
		id := spec.Source.ID()
		st, err := o.runSource(ctx, spec, runTag)
		if err != nil {
			return manifest, err
		}
		manifest.Sources[id] = st
		if st.UsedCache {
			manifest.StaleSources = append(manifest.StaleSources, id)
		}
	}
	sort.Strings(manifest.StaleSources)

	manifest.AsOfUTC = o.isoNow()
	manifest.Notes = buildNotes(manifest)

	policy := store.WritePolicy{Latest: ManifestName}
	if o.opts.KeepRunManifest {
		policy.Archive = manifestArchiveName(runTag)
	}
	if err := o.store.WriteJSON(policy, manifest); err != nil {
		return manifest, fmt.Errorf("write manifest: %w", err)
	}
	log.Printf("[INFO] wrote manifest: %s", o.store.Path(ManifestName))
	return manifest, nil
}

// runSource executes the full acquire-validate-persist-fallback sequence for
// one source. The returned error is non-nil only for persistence failures.
func (o *Orchestrator) runSource(ctx context.Context, spec SourceSpec, runTag string) (model.SourceStatus, error) {
	id := spec.Source.ID()
	log.Printf("[INFO] fetching %s", id)

	ds, fetchErr := retry.Do(ctx, retry.Policy{
		Attempts:    spec.Attempts,
		Delay:       spec.Delay,
		ShouldRetry: source.IsRetryable,
		OnAttempt: func(attempt int, err error) {
			log.Printf("[WARN] %s: attempt %d/%d failed: %v", id, attempt, spec.Attempts, err)
		},
	}, func(ctx context.Context) (*model.Dataset, error) {
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}
		return spec.Source.Fetch(ctx)
	})
	if fetchErr == nil {
		fetchErr = validate.Validate(ds, spec.Rules)
	}

	if fetchErr == nil {
		if err := o.saveSnapshot(ds, runTag); err != nil {
			return model.SourceStatus{}, err
		}
		log.Printf("[INFO] saved %s rows=%d latest=%s", id, ds.Rows(), ds.LatestMarker())
		return model.SourceStatus{
			OK:           true,
			Rows:         ds.Rows(),
			LatestMarker: ds.LatestMarker(),
		}, nil
	}

	log.Printf("[ERROR] fetch %s failed: %v", id, fetchErr)

	// The error report is written for every primary-path failure, even when
	// the fallback below recovers, so the audit trail survives healthy runs.
	if o.opts.KeepErrorReport {
		report := errorReport{AsOfUTC: o.isoNow(), Stage: "fetch_" + id, Error: fetchErr.Error()}
		if err := o.store.WriteJSON(store.WritePolicy{Latest: errorReportName(runTag)}, report); err != nil {
			return model.SourceStatus{}, fmt.Errorf("write error report: %w", err)
		}
	}

	if cached := o.recover(id); cached != nil {
		log.Printf("[WARN] using cached snapshot for %s (stale)", id)
		return model.SourceStatus{
			OK:           true,
			Rows:         cached.Rows(),
			LatestMarker: cached.LatestMarker(),
			UsedCache:    true,
			Error:        fetchErr.Error(),
		}, nil
	}

	if spec.AllowEmpty {
		empty := &model.Dataset{SourceID: id, FetchedAt: o.now().UTC()}
		if err := o.saveSnapshot(empty, runTag); err != nil {
			return model.SourceStatus{}, err
		}
		log.Printf("[WARN] %s: no cache available, wrote empty dataset", id)
		return model.SourceStatus{OK: true, Error: fetchErr.Error()}, nil
	}

	return model.SourceStatus{OK: false, Error: fetchErr.Error()}, nil
}

func (o *Orchestrator) saveSnapshot(ds *model.Dataset, runTag string) error {
	policy := store.WritePolicy{Latest: store.SnapshotName(ds.SourceID)}
	if o.opts.KeepDailySnapshot {
		policy.Archive = store.SnapshotArchiveName(ds.SourceID, runTag)
	}
	if err := o.store.SaveDataset(policy, ds); err != nil {
		return fmt.Errorf("persist %s: %w", ds.SourceID, err)
	}
	return nil
}

// recover loads the last persisted snapshot for a source. It is read-only and
// returns nil when no snapshot exists, it cannot be parsed, or it is empty.
func (o *Orchestrator) recover(id string) *model.Dataset {
	ds, err := o.store.LoadDataset(store.SnapshotName(id), id)
	if err != nil || ds.Rows() == 0 {
		return nil
	}
	return ds
}

func (o *Orchestrator) isoNow() string {
	return o.now().UTC().Format("2006-01-02T15:04:05Z")
}

// buildNotes summarizes failures and staleness. Empty when the run is clean.
func buildNotes(m *model.RunManifest) string {
	var failed []string
	for id, st := range m.Sources {
		if !st.OK {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)

	var parts []string
	if len(failed) > 0 {
		parts = append(parts, "fetch failed with no usable cache: "+strings.Join(failed, ", "))
	}
	if len(m.StaleSources) > 0 {
		parts = append(parts, "served cached snapshot for: "+strings.Join(m.StaleSources, ", "))
	}
	return strings.Join(parts, "; ")
}

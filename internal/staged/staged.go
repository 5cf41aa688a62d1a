// Package staged runs an ordered multi-stage pipeline (capture, extract,
// normalize, delta, digest) as a small state machine: RUNNING until the first
// terminating condition, then exactly one of OK, CHALLENGE, or ERROR. The run
// ledger is persisted after every transition so a partially completed run is
// still inspectable after a crash.
package staged

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"MarketVault/internal/model"
	"MarketVault/internal/store"
)

// Exit codes mirrored to the process exit status.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitChallenge = 2
)

// Step is one pipeline stage. Run returns 0 on success, the pipeline's
// challenge code when it hits an anti-automation or auth barrier it cannot
// resolve, and any other non-zero value on error.
type Step struct {
	Name string
	Run  func(ctx context.Context, runDir string) int
}

// Pipeline executes steps sequentially under an artifacts directory laid out
// as runs/<run_id>/, latest/, and history/<run_id>/.
type Pipeline struct {
	Steps         []Step
	ChallengeCode int
	Now           func() time.Time

	base *store.Store
}

// New creates a Pipeline rooted at baseDir, creating the directory tree.
func New(baseDir string, steps []Step, challengeCode int) (*Pipeline, error) {
	base, err := store.New(baseDir)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{"runs", "latest", "history"} {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", d, err)
		}
	}
	if challengeCode == 0 {
		challengeCode = ExitChallenge
	}
	return &Pipeline{Steps: steps, ChallengeCode: challengeCode, Now: time.Now, base: base}, nil
}

const (
	metaName   = "pipeline_run.meta.json" // current pointer, overwritten
	errName    = "pipeline_error.txt"
	statusName = "run_status.json" // per-run copy inside runs/<run_id>/
)

// Run executes the pipeline once. It returns the finalized run record and the
// process exit code for the terminal state. A panic in any step is caught,
// recorded as ERROR with a diagnostic trace in pipeline_error.txt, and the
// record is finalized before returning.
func (p *Pipeline) Run(ctx context.Context) (rec *model.PipelineRunRecord, exit int) {
	now := p.Now().UTC()
	runID := now.Format("2006-01-02T15-04-05Z")
	runDir := filepath.Join(p.base.Dir(), "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Printf("[ERROR] create run dir: %v", err)
		return nil, ExitError
	}

	rec = &model.PipelineRunRecord{
		RunID:        runID,
		RunUUID:      uuid.NewString(),
		StartedAtUTC: now.Format("2006-01-02T15:04:05Z"),
		Status:       model.StatusRunning,
		Steps:        []model.StepResult{},
		Paths: model.RunPaths{
			RunDir:     runDir,
			LatestDir:  filepath.Join(p.base.Dir(), "latest"),
			HistoryDir: filepath.Join(p.base.Dir(), "history"),
		},
	}
	log.Printf("[INFO] pipeline run %s started (%s)", runID, rec.RunUUID)
	p.persist(rec)

	defer func() {
		if r := recover(); r != nil {
			trace := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			log.Printf("[ERROR] pipeline run %s panicked: %v", runID, r)
			if err := os.WriteFile(p.base.Path(errName), []byte(trace), 0o644); err != nil {
				log.Printf("[ERROR] write error file: %v", err)
			}
			rec.Error = fmt.Sprint(r)
			p.finalize(rec, model.StatusError)
			p.copyLatest(runDir)
			exit = ExitError
		}
	}()

	for _, step := range p.Steps {
		log.Printf("[INFO] step: %s", step.Name)
		code := step.Run(ctx, runDir)
		rec.Steps = append(rec.Steps, model.StepResult{Step: step.Name, ExitCode: code, OK: code == 0})
		p.persist(rec)
		log.Printf("[INFO] step %s finished with exit code %d", step.Name, code)

		if code == p.ChallengeCode {
			log.Printf("[WARN] step %s returned challenge code %d", step.Name, code)
			p.finalize(rec, model.StatusChallenge)
			p.copyLatest(runDir)
			return rec, p.ChallengeCode
		}
		if code != 0 {
			log.Printf("[ERROR] step %s failed with exit code %d", step.Name, code)
			p.finalize(rec, model.StatusError)
			p.copyLatest(runDir)
			return rec, code
		}
	}

	p.finalize(rec, model.StatusOK)
	p.copyLatest(runDir)
	// History archiving only happens from the OK terminal state.
	if err := p.archiveHistory(runDir, runID); err != nil {
		log.Printf("[ERROR] archive run %s: %v", runID, err)
	}
	log.Printf("[INFO] pipeline run %s finished OK", runID)
	return rec, ExitOK
}

// finalize moves the record into its terminal state exactly once and persists.
func (p *Pipeline) finalize(rec *model.PipelineRunRecord, status model.RunStatus) {
	if rec.Status != model.StatusRunning {
		return
	}
	rec.Status = status
	rec.FinishedAtUTC = p.Now().UTC().Format("2006-01-02T15:04:05Z")
	p.persist(rec)
}

// persist writes the record to the per-run path and the "current" pointer.
func (p *Pipeline) persist(rec *model.PipelineRunRecord) {
	runStatus := filepath.Join("runs", rec.RunID, statusName)
	if err := p.base.WriteJSON(store.WritePolicy{Latest: runStatus, Archive: metaName}, rec); err != nil {
		log.Printf("[ERROR] persist run record: %v", err)
	}
}

// copyLatest copies every regular file from the run directory into latest/ so
// downstream consumers can inspect output even after a failed run.
func (p *Pipeline) copyLatest(runDir string) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		log.Printf("[ERROR] read run dir: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(runDir, e.Name())
		dst := filepath.Join(p.base.Dir(), "latest", e.Name())
		if err := copyFile(src, dst); err != nil {
			log.Printf("[ERROR] copy %s to latest: %v", e.Name(), err)
		}
	}
}

// archiveHistory copies the whole run directory under history/<run_id>/.
func (p *Pipeline) archiveHistory(runDir, runID string) error {
	dest := filepath.Join(p.base.Dir(), "history", runID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(runDir, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

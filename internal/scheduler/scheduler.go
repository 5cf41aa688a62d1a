package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"MarketVault/internal/metrics"
	"MarketVault/internal/model"
	"MarketVault/internal/notifier"
	"MarketVault/internal/recorder"
	"MarketVault/internal/runner"
	"MarketVault/internal/staged"
	"MarketVault/internal/store"
)

// SendPolicy decides which run classifications produce a Telegram message.
type SendPolicy struct {
	OnSuccess bool
	OnWarning bool
	OnError   bool
}

// Allows reports whether the policy permits sending for a classification.
func (p SendPolicy) Allows(class model.Classification) bool {
	switch class {
	case model.ClassOK:
		return p.OnSuccess
	case model.ClassWarn:
		return p.OnWarning
	default:
		return p.OnError
	}
}

// Scheduler manages the cron-driven fetch task and Telegram commands.
type Scheduler struct {
	Cron         *cron.Cron
	Orchestrator *runner.Orchestrator
	Store        *store.Store
	Notifier     notifier.Notifier
	Recorder     recorder.Recorder
	Metrics      *metrics.Metrics
	Policy       SendPolicy
	Ctx          context.Context

	// Pipeline, when set, can be scheduled alongside the fetch task.
	Pipeline *staged.Pipeline
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, orc *runner.Orchestrator, st *store.Store, n notifier.Notifier, rec recorder.Recorder, m *metrics.Metrics, policy SendPolicy) *Scheduler {
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Orchestrator: orc,
		Store:        st,
		Notifier:     n,
		Recorder:     rec,
		Metrics:      m,
		Policy:       policy,
		Ctx:          ctx,
	}
}

// RegisterAll registers the scheduled fetch task and, when a pipeline and
// cron expression are both present, the staged pipeline task.
func (s *Scheduler) RegisterAll(fetchCron, pipelineCron string) error {
	if _, err := s.Cron.AddFunc(fetchCron, s.fetchTask); err != nil {
		return fmt.Errorf("register fetch task: %w", err)
	}
	if s.Pipeline != nil && pipelineCron != "" {
		if _, err := s.Cron.AddFunc(pipelineCron, s.pipelineTask); err != nil {
			return fmt.Errorf("register pipeline task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunFetchNow executes the fetch task immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunFetchNow() {
	s.fetchTask()
}

func (s *Scheduler) fetchTask() {
	log.Println("[INFO] running fetch task")
	manifest, err := s.Orchestrator.Run(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] fetch run: %v", err)
		s.trySend(fmt.Sprintf("❌ <b>MarketVault fetch aborted</b>\n<b>error</b>: %v", err))
		return
	}

	class := model.Classify(manifest)
	log.Printf("[INFO] fetch run finished: %s (%d sources, %d stale)",
		class, len(manifest.Sources), len(manifest.StaleSources))

	if s.Metrics != nil {
		s.Metrics.ObserveRun(manifest, class)
	}
	if err := s.Recorder.RecordFetchRun(manifest, class); err != nil {
		log.Printf("[ERROR] record fetch run: %v", err)
	}

	if s.Policy.Allows(class) {
		s.trySend(notifier.FormatRunReport(manifest, class))
	}
}

func (s *Scheduler) pipelineTask() {
	log.Println("[INFO] running staged pipeline")
	rec, exit := s.Pipeline.Run(s.Ctx)
	if rec == nil {
		log.Printf("[ERROR] pipeline did not produce a run record (exit %d)", exit)
		return
	}
	log.Printf("[INFO] pipeline run %s finished: %s (exit %d)", rec.RunID, rec.Status, exit)

	if s.Metrics != nil {
		s.Metrics.ObservePipelineRun(rec)
	}
	if err := s.Recorder.RecordPipelineRun(rec); err != nil {
		log.Printf("[ERROR] record pipeline run: %v", err)
	}

	allowed := s.Policy.OnError
	if rec.Status == model.StatusOK {
		allowed = s.Policy.OnSuccess
	}
	if allowed {
		s.trySend(notifier.FormatPipelineReport(rec))
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/run":
		s.fetchTask()
		return ""
	case "/status":
		var manifest model.RunManifest
		if err := s.Store.ReadJSON(runner.ManifestName, &manifest); err != nil {
			return fmt.Sprintf("no run manifest available: %v", err)
		}
		return notifier.FormatRunReport(&manifest, model.Classify(&manifest))
	default:
		return "Available commands:\n• /run — fetch all sources now\n• /status — show the last run manifest"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Notify(s.Ctx, text); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketVault/internal/config"
	"MarketVault/internal/metrics"
	"MarketVault/internal/notifier"
	"MarketVault/internal/recorder"
	"MarketVault/internal/runner"
	"MarketVault/internal/scheduler"
	"MarketVault/internal/source"
	"MarketVault/internal/staged"
	"MarketVault/internal/store"
	"MarketVault/internal/validate"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] MarketVault starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init store
	st, err := store.New(cfg.Output.DataDir)
	if err != nil {
		log.Fatalf("[FATAL] init store: %v", err)
	}

	// Build source specs from config
	specs := make([]runner.SourceSpec, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := source.NewFromConfig(sc, cfg.Proxy)
		if err != nil {
			log.Fatalf("[FATAL] source %s: %v", sc.ID, err)
		}
		var rules validate.Rules
		if sc.Type == "series" {
			rules = validate.SeriesRules(sc.Validation.MinPrice, sc.Validation.MaxPrice, sc.Validation.MaxMissingRatio)
		} else {
			rules = validate.BarRules(sc.Validation.MinPrice, sc.Validation.MaxPrice, sc.Validation.MaxMissingRatio)
		}
		specs = append(specs, runner.SourceSpec{
			Source:     src,
			Rules:      rules,
			Attempts:   sc.Attempts,
			Delay:      time.Duration(sc.SleepSeconds) * time.Second,
			Timeout:    time.Duration(sc.TimeoutSeconds) * time.Second,
			AllowEmpty: sc.AllowEmptyOnError,
		})
		log.Printf("[INFO] source configured: %s (%s)", sc.ID, sc.Type)
	}

	orc := runner.New(st, specs, runner.Options{
		KeepRunManifest:   cfg.Output.Archive.KeepRunManifest,
		KeepErrorReport:   cfg.Output.Archive.KeepErrorReport,
		KeepDailySnapshot: cfg.Output.Archive.KeepDailySnapshot,
	})

	// Init Telegram notifier
	var n notifier.Notifier = notifier.Noop{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = tn
	} else {
		log.Println("[WARN] Telegram not configured, notifications disabled")
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Init metrics endpoint
	m := metrics.New(cfg.Metrics.Listen)
	if cfg.Metrics.Listen != "" {
		go func() {
			log.Printf("[INFO] metrics listening on %s", cfg.Metrics.Listen)
			if err := m.Serve(); err != nil {
				log.Printf("[ERROR] metrics server: %v", err)
			}
		}()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, orc, st, n, rec, m, scheduler.SendPolicy{
		OnSuccess: cfg.Telegram.SendOnSuccess,
		OnWarning: cfg.Telegram.SendOnWarning,
		OnError:   cfg.Telegram.SendOnError,
	})
	if cfg.Schedule.PipelineCron != "" && len(cfg.Pipeline.Steps) > 0 {
		steps := make([]staged.Step, 0, len(cfg.Pipeline.Steps))
		for _, sc := range cfg.Pipeline.Steps {
			steps = append(steps, staged.CommandStep(sc.Name, sc.Command, sc.Args))
		}
		pipe, err := staged.New(cfg.Pipeline.ArtifactsDir, steps, cfg.Pipeline.ChallengeExitCode)
		if err != nil {
			log.Fatalf("[FATAL] init pipeline: %v", err)
		}
		sched.Pipeline = pipe
	}
	if err := sched.RegisterAll(cfg.Schedule.FetchCron, cfg.Schedule.PipelineCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing fetch now")
		go sched.RunFetchNow()
	}

	log.Println("[INFO] MarketVault is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] metrics shutdown: %v", err)
	}
	log.Println("[INFO] MarketVault stopped")
}

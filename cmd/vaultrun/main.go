// Command vaultrun executes the staged artifact pipeline once and exits with
// the run's terminal code: 0 for OK, 2 (by default) when a step reports a
// challenge that needs operator attention, and the step's own code on error.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"MarketVault/internal/config"
	"MarketVault/internal/model"
	"MarketVault/internal/notifier"
	"MarketVault/internal/recorder"
	"MarketVault/internal/staged"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()
	if v := os.Getenv("CONFIG_PATH"); v != "" && *cfgPath == "configs/config.yaml" {
		*cfgPath = v
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if len(cfg.Pipeline.Steps) == 0 {
		log.Fatal("[FATAL] no pipeline steps configured")
	}

	steps := make([]staged.Step, 0, len(cfg.Pipeline.Steps))
	for _, sc := range cfg.Pipeline.Steps {
		steps = append(steps, staged.CommandStep(sc.Name, sc.Command, sc.Args))
	}

	pipe, err := staged.New(cfg.Pipeline.ArtifactsDir, steps, cfg.Pipeline.ChallengeExitCode)
	if err != nil {
		log.Fatalf("[FATAL] init pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[WARN] shutdown signal received, cancelling run")
		cancel()
	}()

	rec, exit := pipe.Run(ctx)

	if rec != nil {
		if cfg.Database.SQLitePath != "" {
			if sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath); err == nil {
				if err := sr.RecordPipelineRun(rec); err != nil {
					log.Printf("[ERROR] record pipeline run: %v", err)
				}
				sr.Close()
			} else {
				log.Printf("[WARN] init sqlite recorder: %v", err)
			}
		}
		if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" && shouldNotify(cfg, rec.Status) {
			tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
			if err := tn.Notify(ctx, notifier.FormatPipelineReport(rec)); err != nil {
				log.Printf("[ERROR] send notification: %v", err)
			}
		}
	}

	os.Exit(exit)
}

func shouldNotify(cfg *config.Config, status model.RunStatus) bool {
	if status == model.StatusOK {
		return cfg.Telegram.SendOnSuccess
	}
	return cfg.Telegram.SendOnError
}

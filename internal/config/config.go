package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValidationConfig holds per-source validation thresholds.
type ValidationConfig struct {
	MinPrice        float64 `yaml:"min_price"`
	MaxPrice        float64 `yaml:"max_price"`
	MaxMissingRatio float64 `yaml:"max_missing_ratio"`
}

// SourceConfig describes one data source to fetch each run.
type SourceConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"` // "series" or "broker"

	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// series sources
	SeriesID         string `yaml:"series_id"`
	ObservationStart string `yaml:"observation_start"`

	// broker sources
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
	Bars      int    `yaml:"bars"`

	Attempts          int  `yaml:"attempts"`
	SleepSeconds      int  `yaml:"sleep_seconds"`
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	AllowEmptyOnError bool `yaml:"allow_empty_on_error"`

	Validation ValidationConfig `yaml:"validation"`
}

// StepConfig is one external command in the staged pipeline.
type StepConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken      string `yaml:"bot_token"`
		ChatID        string `yaml:"chat_id"`
		SendOnSuccess bool   `yaml:"send_on_success"`
		SendOnWarning bool   `yaml:"send_on_warning"`
		SendOnError   bool   `yaml:"send_on_error"`
	} `yaml:"telegram"`
	Output struct {
		DataDir string `yaml:"data_dir"`
		Archive struct {
			KeepRunManifest   bool `yaml:"keep_run_manifest"`
			KeepErrorReport   bool `yaml:"keep_error_report"`
			KeepDailySnapshot bool `yaml:"keep_daily_snapshot"`
		} `yaml:"archive"`
	} `yaml:"output"`
	Schedule struct {
		FetchCron string `yaml:"fetch_cron"`
		// PipelineCron schedules the staged pipeline from the daemon.
		// Empty leaves it to the vaultrun CLI.
		PipelineCron string `yaml:"pipeline_cron"`
	} `yaml:"schedule"`
	Retry struct {
		Attempts     int `yaml:"attempts"`
		SleepSeconds int `yaml:"sleep_seconds"`
	} `yaml:"retry"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Listen string `yaml:"listen"` // empty disables the endpoint
	} `yaml:"metrics"`
	Pipeline struct {
		ArtifactsDir      string       `yaml:"artifacts_dir"`
		ChallengeExitCode int          `yaml:"challenge_exit_code"`
		Steps             []StepConfig `yaml:"steps"`
	} `yaml:"pipeline"`
	Proxy   string         `yaml:"proxy"`
	Sources []SourceConfig `yaml:"sources"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. yaml.v3 leaves absent keys untouched, so defaults are installed
// before unmarshalling and survive a partial file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Output.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CRON_FETCH"); v != "" {
		cfg.Schedule.FetchCron = v
	}
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Retry.Attempts = n
		}
	}

	// Per-source defaults inherited from the global retry section
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Attempts == 0 {
			src.Attempts = cfg.Retry.Attempts
		}
		if src.SleepSeconds == 0 {
			src.SleepSeconds = cfg.Retry.SleepSeconds
		}
		if src.TimeoutSeconds == 0 {
			src.TimeoutSeconds = 30
		}
		if src.Validation.MaxPrice == 0 {
			src.Validation.MaxPrice = 1e9
		}
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Telegram.SendOnSuccess = true
	cfg.Telegram.SendOnWarning = true
	cfg.Telegram.SendOnError = true
	cfg.Output.DataDir = "data"
	cfg.Output.Archive.KeepRunManifest = true
	cfg.Output.Archive.KeepErrorReport = true
	cfg.Schedule.FetchCron = "0 15 6 * * *"
	cfg.Retry.Attempts = 3
	cfg.Retry.SleepSeconds = 2
	cfg.Pipeline.ArtifactsDir = "artifacts"
	cfg.Pipeline.ChallengeExitCode = 2
	return cfg
}

// Validate checks that the configuration is runnable.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source id is required")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		switch src.Type {
		case "series":
			if src.SeriesID == "" {
				return fmt.Errorf("source %s: series_id is required", src.ID)
			}
		case "broker":
			if src.BaseURL == "" {
				return fmt.Errorf("source %s: base_url is required", src.ID)
			}
			if src.Symbol == "" {
				return fmt.Errorf("source %s: symbol is required", src.ID)
			}
		default:
			return fmt.Errorf("source %s: unknown type %q", src.ID, src.Type)
		}
		if src.Attempts < 1 {
			return fmt.Errorf("source %s: attempts must be >= 1", src.ID)
		}
	}
	for _, step := range c.Pipeline.Steps {
		if step.Name == "" || step.Command == "" {
			return fmt.Errorf("pipeline steps need both name and command")
		}
	}
	return nil
}

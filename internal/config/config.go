package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"linkedin-autopilot/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type OrchestratorConfig struct {
	MaxConcurrentWorkers      int                        `yaml:"max_concurrent_workers"`
	MaxRetryAttempts          int                        `yaml:"max_retry_attempts"`
	SessionFreshnessThreshold time.Duration              `yaml:"session_freshness_threshold"`
	ContentGenerationTimeout  time.Duration              `yaml:"content_generation_timeout"`
	RetryBackoffBase          time.Duration              `yaml:"retry_backoff_base"`
	PollInterval              time.Duration              `yaml:"poll_interval"`
	RateLimits                map[string]RateLimitConfig `yaml:"rate_limits"` // keyed by action kind
}

type SessionConfig struct {
	Accounts     []string `yaml:"accounts"`
	AuthAttempts int      `yaml:"auth_attempts"`
}

type BrowserConfig struct {
	Driver      string        `yaml:"driver"` // cdp | sim
	Headless    bool          `yaml:"headless"`
	NavTimeout  time.Duration `yaml:"nav_timeout"`
	UserDataDir string        `yaml:"user_data_dir"`
}

type AIConfig struct {
	OpenAIKey       string            `yaml:"openai_key"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	DefaultModel    string            `yaml:"default_model"`
	KindModels      map[string]string `yaml:"kind_models"` // action kind -> model
	ConcurrentLimit int               `yaml:"concurrent_limit"`
}

type AlertConfig struct {
	TelegramToken  string  `yaml:"telegram_token"`
	TelegramChatID int64   `yaml:"telegram_chat_id"`
	AdminIDs       []int64 `yaml:"admin_ids"`
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Session      SessionConfig      `yaml:"session"`
	Browser      BrowserConfig      `yaml:"browser"`
	AI           AIConfig           `yaml:"ai"`
	Alert        AlertConfig        `yaml:"alert"`
	API          APIConfig          `yaml:"api"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Defaults mirror the original bot's conservative limits: small hourly
// budgets per externally observable action, 8h session freshness.
var defaultRateLimits = map[string]RateLimitConfig{
	string(model.ActionScrapeProfile):   {Limit: 40, Window: time.Hour},
	string(model.ActionScrapeJob):       {Limit: 40, Window: time.Hour},
	string(model.ActionGenerateContent): {Limit: 30, Window: time.Hour},
	string(model.ActionApplyToJob):      {Limit: 10, Window: time.Hour},
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Orchestrator.MaxConcurrentWorkers <= 0 {
		cfg.Orchestrator.MaxConcurrentWorkers = 4
	}
	if cfg.Orchestrator.MaxRetryAttempts <= 0 {
		cfg.Orchestrator.MaxRetryAttempts = 3
	}
	if cfg.Orchestrator.SessionFreshnessThreshold <= 0 {
		cfg.Orchestrator.SessionFreshnessThreshold = 8 * time.Hour
	}
	if cfg.Orchestrator.ContentGenerationTimeout <= 0 {
		cfg.Orchestrator.ContentGenerationTimeout = 30 * time.Second
	}
	if cfg.Orchestrator.RetryBackoffBase <= 0 {
		cfg.Orchestrator.RetryBackoffBase = 30 * time.Second
	}
	if cfg.Orchestrator.PollInterval <= 0 {
		cfg.Orchestrator.PollInterval = 500 * time.Millisecond
	}
	if cfg.Orchestrator.RateLimits == nil {
		cfg.Orchestrator.RateLimits = map[string]RateLimitConfig{}
	}
	for kind, rl := range defaultRateLimits {
		if _, ok := cfg.Orchestrator.RateLimits[kind]; !ok {
			cfg.Orchestrator.RateLimits[kind] = rl
		}
	}
	for kind, rl := range cfg.Orchestrator.RateLimits {
		if rl.Window <= 0 {
			rl.Window = time.Hour
			cfg.Orchestrator.RateLimits[kind] = rl
		}
	}
	if cfg.Session.AuthAttempts <= 0 {
		cfg.Session.AuthAttempts = 2
	}
	if cfg.Browser.Driver == "" {
		cfg.Browser.Driver = "cdp"
	}
	if cfg.Browser.NavTimeout <= 0 {
		cfg.Browser.NavTimeout = 30 * time.Second
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8090
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if len(cfg.Session.Accounts) == 0 {
		return nil, errors.New("session.accounts must name at least one account")
	}
	for kind := range cfg.Orchestrator.RateLimits {
		if !model.ActionKind(kind).Valid() {
			return nil, fmt.Errorf("orchestrator.rate_limits: unknown action kind %q", kind)
		}
	}
	if cfg.API.JWTSecret == "" && !dev {
		return nil, errors.New("api.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

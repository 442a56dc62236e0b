// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
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

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenRouterKey   string `yaml:"openrouter_key"`
	OpenRouterSite  string `yaml:"openrouter_site"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	SummarizerModel string `yaml:"summarizer_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent provider calls
}

type GuardConfig struct {
	MaxTokensPerCall   int      `yaml:"max_tokens_per_call"`
	MaxMessagesPerConv int      `yaml:"max_messages_per_conversation"`
	AllowedModels      []string `yaml:"allowed_models"`
	RateLimitEnabled   *bool    `yaml:"rate_limit_enabled"`
	RateLimitRPM       int      `yaml:"rate_limit_rpm"`
	MaxUSDPerConv      float64  `yaml:"max_usd_per_conversation"` // 0 disables the cap
}

type JobsConfig struct {
	Workers         int           `yaml:"workers"`
	OwnerCap        int           `yaml:"owner_cap"` // max live jobs per owner
	MaxScaleRuns    int           `yaml:"max_scale_runs"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	EvictTTL        time.Duration `yaml:"evict_ttl"`
	Queue           string        `yaml:"queue"` // inproc | redis
	RedisQueueName  string        `yaml:"redis_queue_name"`
	ScaleBudgetUSD  float64       `yaml:"scale_budget_usd"` // 0 disables the preflight cap
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Guard    GuardConfig    `yaml:"guard"`
	Jobs     JobsConfig     `yaml:"jobs"`

	Runtime RuntimeConfig `yaml:"-"`
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
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Guard.MaxTokensPerCall <= 0 {
		cfg.Guard.MaxTokensPerCall = 512
	}
	if cfg.Guard.MaxMessagesPerConv <= 0 {
		cfg.Guard.MaxMessagesPerConv = 25
	}
	if cfg.Guard.RateLimitEnabled == nil {
		enabled := true
		cfg.Guard.RateLimitEnabled = &enabled
	}
	if cfg.Guard.RateLimitRPM <= 0 {
		cfg.Guard.RateLimitRPM = 60
	}
	if cfg.Jobs.Workers <= 0 {
		cfg.Jobs.Workers = 8
	}
	if cfg.Jobs.OwnerCap <= 0 {
		cfg.Jobs.OwnerCap = 3
	}
	if cfg.Jobs.MaxScaleRuns <= 0 {
		cfg.Jobs.MaxScaleRuns = 10
	}
	if cfg.Jobs.RequestTimeout <= 0 {
		cfg.Jobs.RequestTimeout = 60 * time.Second
	}
	if cfg.Jobs.EvictTTL <= 0 {
		cfg.Jobs.EvictTTL = 10 * time.Minute
	}
	if cfg.Jobs.Queue == "" {
		cfg.Jobs.Queue = "inproc"
	}
	if cfg.Jobs.RedisQueueName == "" {
		cfg.Jobs.RedisQueueName = "jobs"
	}

	// Minimal validation
	if cfg.AI.OpenAIKey == "" && cfg.AI.OpenRouterKey == "" && cfg.AI.GeminiKey == "" && !dev {
		return nil, errors.New("at least one of ai.openai_key, ai.openrouter_key, ai.gemini_key is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	switch strings.ToLower(cfg.Jobs.Queue) {
	case "inproc", "redis":
	default:
		return nil, fmt.Errorf("jobs.queue must be inproc or redis, got %q", cfg.Jobs.Queue)
	}
	if cfg.Jobs.Queue == "redis" && cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required when jobs.queue is redis")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (g *GuardConfig) RateLimitOn() bool {
	return g.RateLimitEnabled == nil || *g.RateLimitEnabled
}

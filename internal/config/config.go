// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Health    HealthConfig    `mapstructure:"health"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Render    RenderConfig    `mapstructure:"render"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Skill     SkillConfig     `mapstructure:"skill"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the tick loop and job fan-out.
type SchedulerConfig struct {
	TickSeconds          int `mapstructure:"tick_seconds"`
	MaxConcurrent        int `mapstructure:"max_concurrent"`
	JobTimeoutSeconds    int `mapstructure:"job_timeout_seconds"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
	DefaultIntervalMin   int `mapstructure:"default_interval_minutes"`
}

// TickInterval returns the scheduler cadence as a duration.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// JobTimeout returns the per-job budget as a duration.
func (c SchedulerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long in-flight jobs may run after shutdown.
func (c SchedulerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// HealthConfig sets the state-machine thresholds and backoff schedule.
type HealthConfig struct {
	DegradedAfter        int `mapstructure:"degraded_after"`
	FailingAfter         int `mapstructure:"failing_after"`
	DisableAfter         int `mapstructure:"disable_after"`
	BackoffBaseSeconds   int `mapstructure:"backoff_base_seconds"`
	BackoffCapSeconds    int `mapstructure:"backoff_cap_seconds"`
	RateLimitFloorSecond int `mapstructure:"rate_limit_floor_seconds"`
}

// FetchConfig configures the plain HTTP fetcher.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerDomainRPS   float64 `mapstructure:"per_domain_rps"`
	PerDomainBurst int     `mapstructure:"per_domain_burst"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxSessions       int  `mapstructure:"max_sessions"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes      int  `mapstructure:"min_html_bytes"`
}

// LLMConfig configures the language-model provider.
type LLMConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// SkillConfig governs skill generation and its validation gate.
type SkillConfig struct {
	SampleCount      int     `mapstructure:"sample_count"`
	MinValidFraction float64 `mapstructure:"min_valid_fraction"`
	MinBodyLength    int     `mapstructure:"min_body_length"`
	MaxTurns         int     `mapstructure:"max_turns"`
}

// ExtractConfig governs live extraction validation and drift detection.
type ExtractConfig struct {
	MinBodyLength      int     `mapstructure:"min_body_length"`
	DriftWindow        int     `mapstructure:"drift_window"`
	DriftThreshold     float64 `mapstructure:"drift_threshold"`
	FallbackConfidence float64 `mapstructure:"fallback_confidence"`
}

// DBConfig controls access to Postgres-backed stores. Empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	SourcesTable string `mapstructure:"sources_table"`
	SkillsTable  string `mapstructure:"skills_table"`
}

// PubSubConfig selects the downstream pipeline publisher. Empty project
// selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// BlobConfig selects where sample-page snapshots land.
type BlobConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGESTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("scheduler.tick_seconds", 30)
	v.SetDefault("scheduler.max_concurrent", 6)
	v.SetDefault("scheduler.job_timeout_seconds", 120)
	v.SetDefault("scheduler.shutdown_grace_seconds", 30)
	v.SetDefault("scheduler.default_interval_minutes", 30)

	v.SetDefault("health.degraded_after", 2)
	v.SetDefault("health.failing_after", 5)
	v.SetDefault("health.disable_after", 10)
	v.SetDefault("health.backoff_base_seconds", 60)
	v.SetDefault("health.backoff_cap_seconds", 6*60*60)
	v.SetDefault("health.rate_limit_floor_seconds", 15*60)

	v.SetDefault("fetch.user_agent", "ingestd/1.0 (+https://github.com/newsloom/ingestd)")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.per_domain_rps", 1)
	v.SetDefault("fetch.per_domain_burst", 2)

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_sessions", 2)
	v.SetDefault("render.nav_timeout_seconds", 30)
	v.SetDefault("render.min_html_bytes", 2000)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.requests_per_minute", 20)
	v.SetDefault("llm.max_concurrent", 2)

	v.SetDefault("skill.sample_count", 3)
	v.SetDefault("skill.min_valid_fraction", 0.67)
	v.SetDefault("skill.min_body_length", 200)
	v.SetDefault("skill.max_turns", 2)

	v.SetDefault("extract.min_body_length", 200)
	v.SetDefault("extract.drift_window", 10)
	v.SetDefault("extract.drift_threshold", 0.5)
	v.SetDefault("extract.fallback_confidence", 0.3)

	v.SetDefault("db.sources_table", "sources")
	v.SetDefault("db.skills_table", "skills")

	v.SetDefault("blob.prefix", "samples")

	v.SetDefault("logging.development", false)
}

// Validate checks cross-field constraints that defaults alone cannot enforce.
func (c Config) Validate() error {
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler.max_concurrent must be positive")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be positive")
	}
	if c.Health.DegradedAfter <= 0 ||
		c.Health.FailingAfter <= c.Health.DegradedAfter ||
		c.Health.DisableAfter <= c.Health.FailingAfter {
		return fmt.Errorf("health thresholds must satisfy 0 < degraded_after < failing_after < disable_after")
	}
	if c.Skill.MinValidFraction <= 0 || c.Skill.MinValidFraction > 1 {
		return fmt.Errorf("skill.min_valid_fraction must be in (0, 1]")
	}
	if c.Extract.DriftThreshold <= 0 || c.Extract.DriftThreshold > 1 {
		return fmt.Errorf("extract.drift_threshold must be in (0, 1]")
	}
	if c.Extract.DriftWindow <= 0 {
		return fmt.Errorf("extract.drift_window must be positive")
	}
	if c.Skill.SampleCount < 1 {
		return fmt.Errorf("skill.sample_count must be at least 1")
	}
	return nil
}

package config

import (
	"fmt"
	"time"
)

// Config holds storia configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
	Log       LogCfg       `mapstructure:"log" yaml:"log"`
	Classify  ClassifyCfg  `mapstructure:"classify" yaml:"classify"`
	Synthesis SynthesisCfg `mapstructure:"synthesis" yaml:"synthesis"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Cache     CacheCfg     `mapstructure:"cache" yaml:"cache"`
	Cost      CostCfg      `mapstructure:"cost" yaml:"cost"`
	Storage   StorageCfg   `mapstructure:"storage" yaml:"storage"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// LogCfg configures slog output.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text", "json"
}

// RetryCfg configures exponential backoff for a provider client.
type RetryCfg struct {
	MaxRetries  int `mapstructure:"max_retries" yaml:"max_retries"`     // retries after the first attempt
	BaseDelayMS int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"` // first backoff step
	MaxDelayMS  int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`   // backoff cap
}

// PollCfg configures the synthesis job poller.
type PollCfg struct {
	InitialDelayMS int `mapstructure:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMS     int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	BudgetSecs     int `mapstructure:"budget_secs" yaml:"budget_secs"` // wall clock budget per job
}

// ClassifyCfg configures the page classification provider.
type ClassifyCfg struct {
	Provider    string   `mapstructure:"provider" yaml:"provider"` // "gateway", "openai", "mock"
	Model       string   `mapstructure:"model" yaml:"model"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	MaxChars    int      `mapstructure:"max_chars" yaml:"max_chars"`
	RateLimit   float64  `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	TimeoutSecs int      `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	Workers     int      `mapstructure:"workers" yaml:"workers"`
	Retry       RetryCfg `mapstructure:"retry" yaml:"retry"`
}

// SynthesisCfg configures the ambient audio provider.
type SynthesisCfg struct {
	Provider            string   `mapstructure:"provider" yaml:"provider"` // "ambient", "mock"
	BaseURL             string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey              string   `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	MaxDurationSecs     int      `mapstructure:"max_duration_secs" yaml:"max_duration_secs"`
	DefaultDurationSecs int      `mapstructure:"default_duration_secs" yaml:"default_duration_secs"`
	Format              string   `mapstructure:"format" yaml:"format"`
	RateLimit           float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSecs         int      `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	Workers             int      `mapstructure:"workers" yaml:"workers"`
	Retry               RetryCfg `mapstructure:"retry" yaml:"retry"`
	Poll                PollCfg  `mapstructure:"poll" yaml:"poll"`
}

// PipelineCfg configures admission and scene detection.
type PipelineCfg struct {
	MaxBooks          int     `mapstructure:"max_books" yaml:"max_books"`                   // books in flight
	PerBookInFlight   int     `mapstructure:"per_book_in_flight" yaml:"per_book_in_flight"` // concurrent classifications per book
	BoundaryThreshold float64 `mapstructure:"boundary_threshold" yaml:"boundary_threshold"` // similarity below this starts a scene
	BookTimeoutSecs   int     `mapstructure:"book_timeout_secs" yaml:"book_timeout_secs"`
}

// CacheCfg configures soundscape reuse.
type CacheCfg struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	ExcludeSameBook bool `mapstructure:"exclude_same_book" yaml:"exclude_same_book"`
}

// CostCfg holds unit prices for the cost ledger.
type CostCfg struct {
	ClassificationCall float64 `mapstructure:"classification_call" yaml:"classification_call"` // per attempted call
	SynthesisPerSecond float64 `mapstructure:"synthesis_per_second" yaml:"synthesis_per_second"`
}

// StorageCfg selects the audio object store backend.
type StorageCfg struct {
	Backend string  `mapstructure:"backend" yaml:"backend"` // "fs", "nats"
	NATS    NATSCfg `mapstructure:"nats" yaml:"nats"`
}

// NATSCfg configures the JetStream object store backend.
type NATSCfg struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
		Classify: ClassifyCfg{
			Provider:    "gateway",
			Model:       "anthropic/claude-3.5-haiku",
			APIKey:      "${STORIA_CLASSIFY_API_KEY}",
			MaxChars:    6000,
			RateLimit:   5.0,
			TimeoutSecs: 60,
			Workers:     10,
			Retry: RetryCfg{
				MaxRetries:  3,
				BaseDelayMS: 1000,
				MaxDelayMS:  10000,
			},
		},
		Synthesis: SynthesisCfg{
			Provider:            "ambient",
			APIKey:              "${STORIA_SYNTHESIS_API_KEY}",
			MaxDurationSecs:     30,
			DefaultDurationSecs: 20,
			Format:              "mp3",
			RateLimit:           2.0,
			TimeoutSecs:         30,
			Workers:             4,
			Retry: RetryCfg{
				MaxRetries:  3,
				BaseDelayMS: 1000,
				MaxDelayMS:  10000,
			},
			Poll: PollCfg{
				InitialDelayMS: 500,
				MaxDelayMS:     8000,
				BudgetSecs:     90,
			},
		},
		Pipeline: PipelineCfg{
			MaxBooks:          2,
			PerBookInFlight:   5,
			BoundaryThreshold: 0.6,
			BookTimeoutSecs:   900,
		},
		Cache: CacheCfg{
			Enabled:         true,
			ExcludeSameBook: true,
		},
		Cost: CostCfg{
			ClassificationCall: 1.0,
			SynthesisPerSecond: 0.5,
		},
		Storage: StorageCfg{
			Backend: "fs",
			NATS: NATSCfg{
				URL:    "nats://127.0.0.1:4222",
				Bucket: "storia-audio",
			},
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Pipeline.BoundaryThreshold < 0 || c.Pipeline.BoundaryThreshold > 1 {
		return fmt.Errorf("pipeline.boundary_threshold must be in [0,1], got %v", c.Pipeline.BoundaryThreshold)
	}
	if c.Pipeline.MaxBooks <= 0 {
		return fmt.Errorf("pipeline.max_books must be positive, got %d", c.Pipeline.MaxBooks)
	}
	if c.Pipeline.PerBookInFlight <= 0 {
		return fmt.Errorf("pipeline.per_book_in_flight must be positive, got %d", c.Pipeline.PerBookInFlight)
	}
	if c.Classify.Workers <= 0 {
		return fmt.Errorf("classify.workers must be positive, got %d", c.Classify.Workers)
	}
	if c.Synthesis.Workers <= 0 {
		return fmt.Errorf("synthesis.workers must be positive, got %d", c.Synthesis.Workers)
	}
	if c.Synthesis.MaxDurationSecs <= 0 {
		return fmt.Errorf("synthesis.max_duration_secs must be positive, got %d", c.Synthesis.MaxDurationSecs)
	}
	if c.Cost.ClassificationCall < 0 || c.Cost.SynthesisPerSecond < 0 {
		return fmt.Errorf("cost unit prices must not be negative")
	}
	switch c.Storage.Backend {
	case "fs", "nats":
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", "fs", "nats", c.Storage.Backend)
	}
	return nil
}

// BookTimeout returns the per-book processing deadline.
func (c *Config) BookTimeout() time.Duration {
	return time.Duration(c.Pipeline.BookTimeoutSecs) * time.Second
}

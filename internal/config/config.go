package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/asp2131/storia/internal/classify"
	"github.com/asp2131/storia/internal/synthesis"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("log", defaults.Log)
	viper.SetDefault("classify", defaults.Classify)
	viper.SetDefault("synthesis", defaults.Synthesis)
	viper.SetDefault("pipeline", defaults.Pipeline)
	viper.SetDefault("cache", defaults.Cache)
	viper.SetDefault("cost", defaults.Cost)
	viper.SetDefault("storage", defaults.Storage)

	// Environment variables with STORIA_ prefix
	viper.SetEnvPrefix("STORIA")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.storia")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToClassifySettings converts the config into classify registry settings.
// It resolves ${ENV_VAR} references in the API key.
func (c *Config) ToClassifySettings() classify.Settings {
	return classify.Settings{
		Provider: c.Classify.Provider,
		Model:    c.Classify.Model,
		BaseURL:  c.Classify.BaseURL,
		APIKey:   ResolveEnvVars(c.Classify.APIKey),
		MaxChars: c.Classify.MaxChars,
		RPS:      c.Classify.RateLimit,
		Timeout:  time.Duration(c.Classify.TimeoutSecs) * time.Second,
		Retry: classify.RetryPolicy{
			MaxRetries: c.Classify.Retry.MaxRetries,
			BaseDelay:  time.Duration(c.Classify.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(c.Classify.Retry.MaxDelayMS) * time.Millisecond,
		},
	}
}

// ToSynthesisSettings converts the config into synthesis registry settings.
// It resolves ${ENV_VAR} references in the API key.
func (c *Config) ToSynthesisSettings() synthesis.Settings {
	return synthesis.Settings{
		Provider:        c.Synthesis.Provider,
		BaseURL:         c.Synthesis.BaseURL,
		APIKey:          ResolveEnvVars(c.Synthesis.APIKey),
		MaxDurationSecs: c.Synthesis.MaxDurationSecs,
		Format:          c.Synthesis.Format,
		RPS:             c.Synthesis.RateLimit,
		Timeout:         time.Duration(c.Synthesis.TimeoutSecs) * time.Second,
		Retry: synthesis.RetryPolicy{
			MaxRetries: c.Synthesis.Retry.MaxRetries,
			BaseDelay:  time.Duration(c.Synthesis.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(c.Synthesis.Retry.MaxDelayMS) * time.Millisecond,
		},
		Poll: synthesis.PollPolicy{
			InitialDelay: time.Duration(c.Synthesis.Poll.InitialDelayMS) * time.Millisecond,
			MaxDelay:     time.Duration(c.Synthesis.Poll.MaxDelayMS) * time.Millisecond,
			Budget:       time.Duration(c.Synthesis.Poll.BudgetSecs) * time.Second,
		},
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Storia configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export STORIA_CLASSIFY_API_KEY=xxx STORIA_SYNTHESIS_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

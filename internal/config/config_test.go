package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.BoundaryThreshold != 0.6 {
		t.Errorf("boundary threshold = %v, want 0.6", cfg.Pipeline.BoundaryThreshold)
	}
	if cfg.Pipeline.MaxBooks != 2 {
		t.Errorf("max books = %d, want 2", cfg.Pipeline.MaxBooks)
	}
	if cfg.Pipeline.PerBookInFlight != 5 {
		t.Errorf("per book in flight = %d, want 5", cfg.Pipeline.PerBookInFlight)
	}
	if !cfg.Cache.Enabled || !cfg.Cache.ExcludeSameBook {
		t.Error("cache should default to enabled with same-book exclusion")
	}
	if cfg.Classify.APIKey != "${STORIA_CLASSIFY_API_KEY}" {
		t.Error("expected classify API key placeholder")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"threshold above one", func(c *Config) { c.Pipeline.BoundaryThreshold = 1.5 }, true},
		{"threshold negative", func(c *Config) { c.Pipeline.BoundaryThreshold = -0.1 }, true},
		{"threshold at bounds", func(c *Config) { c.Pipeline.BoundaryThreshold = 1.0 }, false},
		{"zero max books", func(c *Config) { c.Pipeline.MaxBooks = 0 }, true},
		{"zero classify workers", func(c *Config) { c.Classify.Workers = 0 }, true},
		{"zero synthesis workers", func(c *Config) { c.Synthesis.Workers = 0 }, true},
		{"negative cost", func(c *Config) { c.Cost.ClassificationCall = -1 }, true},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "s3" }, true},
		{"zero max duration", func(c *Config) { c.Synthesis.MaxDurationSecs = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToClassifySettings(t *testing.T) {
	os.Setenv("TEST_CLASSIFY_KEY", "ck-123")
	defer os.Unsetenv("TEST_CLASSIFY_KEY")

	cfg := DefaultConfig()
	cfg.Classify.APIKey = "${TEST_CLASSIFY_KEY}"
	cfg.Classify.TimeoutSecs = 30
	cfg.Classify.Retry.BaseDelayMS = 250

	settings := cfg.ToClassifySettings()
	if settings.APIKey != "ck-123" {
		t.Errorf("API key = %q, want resolved ck-123", settings.APIKey)
	}
	if settings.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", settings.Timeout)
	}
	if settings.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("retry base delay = %v, want 250ms", settings.Retry.BaseDelay)
	}
}

func TestToSynthesisSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Synthesis.Poll.BudgetSecs = 45

	settings := cfg.ToSynthesisSettings()
	if settings.Poll.Budget != 45*time.Second {
		t.Errorf("poll budget = %v, want 45s", settings.Poll.Budget)
	}
	if settings.MaxDurationSecs != 30 {
		t.Errorf("max duration = %d, want 30", settings.MaxDurationSecs)
	}
}

func writeConfigFile(t *testing.T, path string, cfg *Config) {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		cfg := DefaultConfig()
		cfg.Classify.Model = "test-model"
		writeConfigFile(t, configFile, cfg)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		got := mgr.Get()
		if got.Classify.Model != "test-model" {
			t.Errorf("classify model = %q, want test-model", got.Classify.Model)
		}
	})

	t.Run("rejects invalid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		cfg := DefaultConfig()
		cfg.Pipeline.BoundaryThreshold = 2.0
		writeConfigFile(t, configFile, cfg)

		if _, err := NewManager(configFile); err == nil {
			t.Error("expected an error for an out-of-range threshold")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(configFile); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("written default config must load, got %v", err)
	}
	if got := mgr.Get().Pipeline.MaxBooks; got != 2 {
		t.Errorf("max books from written defaults = %d, want 2", got)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configFile, DefaultConfig())

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configFile, DefaultConfig())

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Pipeline.MaxBooks
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	initial := DefaultConfig()
	initial.Classify.Model = "initial-model"
	writeConfigFile(t, configFile, initial)

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().Classify.Model; got != "initial-model" {
		t.Errorf("initial model = %q, want initial-model", got)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastModel atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastModel.Store(cfg.Classify.Model)
	})

	// Start watching
	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	// Update the config file
	updated := DefaultConfig()
	updated.Classify.Model = "updated-model"
	writeConfigFile(t, configFile, updated)

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}

	// Verify the config was updated
	if got := mgr.Get().Classify.Model; got != "updated-model" {
		t.Errorf("config not updated: model = %q, want updated-model", got)
	}

	// Verify callback received the updated value
	if v := lastModel.Load(); v != "updated-model" {
		t.Errorf("callback received wrong value: expected updated-model, got %v", v)
	}
}

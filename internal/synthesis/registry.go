package synthesis

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Settings selects and configures a synthesis provider.
type Settings struct {
	Provider        string
	BaseURL         string
	APIKey          string
	MaxDurationSecs int
	Format          string
	RPS             float64
	Timeout         time.Duration
	Retry           RetryPolicy
	Poll            PollPolicy
}

// Registry holds the active synthesis client and swaps it out when settings
// change.
type Registry struct {
	mu       sync.RWMutex
	client   Client
	settings Settings
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Reload must be called before Client.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger.With("component", "synthesis")}
}

// Reload rebuilds the client if the settings differ from the active ones.
func (r *Registry) Reload(settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil && settings == r.settings {
		return nil
	}

	var client Client
	switch settings.Provider {
	case AmbientName, "":
		client = NewAmbientClient(AmbientConfig{
			APIKey:          settings.APIKey,
			BaseURL:         settings.BaseURL,
			MaxDurationSecs: settings.MaxDurationSecs,
			Format:          settings.Format,
			RPS:             settings.RPS,
			Timeout:         settings.Timeout,
		})
	case MockName:
		mock := NewMockClient()
		if settings.MaxDurationSecs > 0 {
			mock.MaxDuration = settings.MaxDurationSecs
		}
		client = mock
	default:
		return fmt.Errorf("unknown synthesis provider %q", settings.Provider)
	}

	r.client = client
	r.settings = settings
	r.logger.Info("synthesis provider ready",
		"provider", client.Name(),
		"max_duration_secs", client.MaxDurationSecs(),
		"poll_budget", settings.Poll.withDefaults().Budget)
	return nil
}

// Use installs a prebuilt client, keeping the registry's retry and poll
// policies. Tests wire scripted clients this way.
func (r *Registry) Use(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = client
	r.settings.Provider = client.Name()
}

// Client returns the active client, or nil before the first Reload.
func (r *Registry) Client() Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// RetryPolicy returns the submit retry policy from the active settings.
func (r *Registry) RetryPolicy() RetryPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.Retry.withDefaults()
}

// PollPolicy returns the poll policy from the active settings.
func (r *Registry) PollPolicy() PollPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.Poll.withDefaults()
}

// Provider returns the active provider name, or "" before the first Reload.
func (r *Registry) Provider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return ""
	}
	return r.client.Name()
}

package endpoints

import (
	"github.com/asp2131/storia/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Book endpoints
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&ProcessBookEndpoint{},
		&BookScenesEndpoint{},
		&BookCostsEndpoint{},
		&DeleteBookEndpoint{},

		// Scene review endpoints
		&OverrideSoundscapeEndpoint{},
		&SoundscapeAudioEndpoint{},

		// Introspection endpoints
		&PipelineStatusEndpoint{},
		&CacheStatsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}

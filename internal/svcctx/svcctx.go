// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/asp2131/storia/internal/cache"
	"github.com/asp2131/storia/internal/classify"
	"github.com/asp2131/storia/internal/config"
	"github.com/asp2131/storia/internal/cost"
	"github.com/asp2131/storia/internal/home"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/storage"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/synthesis"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store     store.Store
	Objects   storage.ObjectStore
	Cache     *cache.Cache
	Costs     *cost.Recorder
	Classify  *classify.Registry
	Synthesis *synthesis.Registry
	Scheduler *pipeline.Scheduler
	Config    *config.Manager
	Logger    *slog.Logger
	Home      *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the persistence store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ObjectsFrom extracts the audio object store from context.
func ObjectsFrom(ctx context.Context) storage.ObjectStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.Objects
	}
	return nil
}

// CacheFrom extracts the soundscape cache from context.
func CacheFrom(ctx context.Context) *cache.Cache {
	if s := ServicesFrom(ctx); s != nil {
		return s.Cache
	}
	return nil
}

// CostsFrom extracts the cost recorder from context.
func CostsFrom(ctx context.Context) *cost.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Costs
	}
	return nil
}

// ClassifyFrom extracts the classification provider registry from context.
func ClassifyFrom(ctx context.Context) *classify.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Classify
	}
	return nil
}

// SynthesisFrom extracts the synthesis provider registry from context.
func SynthesisFrom(ctx context.Context) *synthesis.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Synthesis
	}
	return nil
}

// SchedulerFrom extracts the pipeline scheduler from context.
func SchedulerFrom(ctx context.Context) *pipeline.Scheduler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Scheduler
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// Package server assembles the Storia services and serves the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/cache"
	"github.com/asp2131/storia/internal/classify"
	"github.com/asp2131/storia/internal/config"
	"github.com/asp2131/storia/internal/cost"
	"github.com/asp2131/storia/internal/home"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/server/endpoints"
	"github.com/asp2131/storia/internal/storage"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/svcctx"
	"github.com/asp2131/storia/internal/synthesis"
)

// Server is the main Storia HTTP server. It owns the SQLite store, the audio
// object store, the provider registries, and the pipeline scheduler, wiring
// them into request contexts for the endpoint handlers.
type Server struct {
	httpServer  *http.Server
	homeDir     *home.Dir
	configMgr   *config.Manager
	classifyReg *classify.Registry
	synthReg    *synthesis.Registry
	logger      *slog.Logger

	// built during Start
	st        store.Store
	objects   storage.ObjectStore
	cache     *cache.Cache
	costs     *cost.Recorder
	scheduler *pipeline.Scheduler

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the storia home directory holding the database and audio files
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// SwaggerSpecPath points at the generated OpenAPI document
	SwaggerSpecPath string
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		dir, err := home.New("")
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.Home = dir
	}

	classifyReg := classify.NewRegistry(cfg.Logger)
	synthReg := synthesis.NewRegistry(cfg.Logger)

	// If config manager provided, build providers and set up hot reload
	if cfg.ConfigManager != nil {
		c := cfg.ConfigManager.Get()
		if err := classifyReg.Reload(c.ToClassifySettings()); err != nil {
			return nil, fmt.Errorf("build classification provider: %w", err)
		}
		if err := synthReg.Reload(c.ToSynthesisSettings()); err != nil {
			return nil, fmt.Errorf("build synthesis provider: %w", err)
		}

		// Watch for config changes. Only provider settings reload live;
		// pool sizes and admission limits need a restart.
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			if err := classifyReg.Reload(c.ToClassifySettings()); err != nil {
				cfg.Logger.Warn("classification provider reload failed", "error", err)
			}
			if err := synthReg.Reload(c.ToSynthesisSettings()); err != nil {
				cfg.Logger.Warn("synthesis provider reload failed", "error", err)
			}
			cfg.Logger.Info("provider registries reloaded from config")
		})
	}

	s := &Server{
		homeDir:     cfg.Home,
		configMgr:   cfg.ConfigManager,
		classifyReg: classifyReg,
		synthReg:    synthReg,
		logger:      cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the store, builds the pipeline, and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.homeDir.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("create home directory: %w", err)
	}

	c := config.DefaultConfig()
	if s.configMgr != nil {
		c = s.configMgr.Get()
	}
	if err := c.Validate(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.logger.Info("opening store", "path", s.homeDir.DBPath())
	st, err := store.OpenSQLite(s.homeDir.DBPath())
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("open store: %w", err)
	}
	s.st = st

	objects, err := s.buildObjectStore(c)
	if err != nil {
		_ = s.st.Close()
		s.setNotRunning()
		return fmt.Errorf("open object store: %w", err)
	}
	s.objects = objects
	s.logger.Info("object store ready", "backend", objects.Name())

	s.cache = cache.New(s.st, c.Cache.Enabled, c.Cache.ExcludeSameBook)
	s.costs = cost.NewRecorder(s.st, cost.Pricing{
		ClassificationCall: c.Cost.ClassificationCall,
		SynthesisPerSecond: c.Cost.SynthesisPerSecond,
	}, s.logger)

	scheduler, err := s.buildScheduler(c)
	if err != nil {
		_ = s.st.Close()
		s.setNotRunning()
		return fmt.Errorf("build scheduler: %w", err)
	}
	s.scheduler = scheduler

	if n, err := scheduler.RecoverInterrupted(ctx); err != nil {
		_ = s.st.Close()
		s.setNotRunning()
		return fmt.Errorf("recover interrupted books: %w", err)
	} else if n > 0 {
		s.logger.Warn("failed books left mid-flight by a previous shutdown", "count", n)
	}

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Store:     s.st,
		Objects:   s.objects,
		Cache:     s.cache,
		Costs:     s.costs,
		Classify:  s.classifyReg,
		Synthesis: s.synthReg,
		Scheduler: s.scheduler,
		Config:    s.configMgr,
		Logger:    s.logger,
		Home:      s.homeDir,
	}

	// Run the scheduler until shutdown
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go s.scheduler.Run(schedCtx)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			schedCancel()
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	schedCancel()
	return s.shutdown()
}

// buildObjectStore opens the configured audio object store backend.
func (s *Server) buildObjectStore(c *config.Config) (storage.ObjectStore, error) {
	switch c.Storage.Backend {
	case "nats":
		return storage.NewNATSStore(c.Storage.NATS.URL, c.Storage.NATS.Bucket)
	default:
		return storage.NewFSStore(s.homeDir.AudioDir())
	}
}

// buildScheduler assembles the scheduler and its worker pools from config.
func (s *Server) buildScheduler(c *config.Config) (*pipeline.Scheduler, error) {
	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Store:    s.st,
		Logger:   s.logger,
		MaxBooks: c.Pipeline.MaxBooks,
		Book: pipeline.BookConfig{
			BoundaryThreshold: c.Pipeline.BoundaryThreshold,
			ClassifyInFlight:  c.Pipeline.PerBookInFlight,
			SceneDurationSecs: c.Synthesis.DefaultDurationSecs,
			AudioFormat:       c.Synthesis.Format,
			Timeout:           c.BookTimeout(),
		},
	})

	classifyPool, err := pipeline.NewPool(pipeline.PoolConfig{
		Name:      "classify",
		Kind:      pipeline.UnitClassify,
		Processor: pipeline.NewClassifyProcessor(s.classifyReg, s.costs, s.logger),
		Logger:    s.logger,
		Workers:   c.Classify.Workers,
		RPS:       c.Classify.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	synthPool, err := pipeline.NewPool(pipeline.PoolConfig{
		Name:      "synthesize",
		Kind:      pipeline.UnitSynthesize,
		Processor: pipeline.NewSynthesizeProcessor(s.synthReg, s.st, s.objects, s.cache, s.costs, s.logger),
		Logger:    s.logger,
		Workers:   c.Synthesis.Workers,
		RPS:       c.Synthesis.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	scheduler.RegisterPool(classifyPool)
	scheduler.RegisterPool(synthPool)
	return scheduler, nil
}

// shutdown performs graceful shutdown of the HTTP server and the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if nats, ok := s.objects.(*storage.NATSStore); ok {
		nats.Close()
	}

	if s.st != nil {
		if err := s.st.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the book store.
// Returns nil if the server hasn't started yet.
func (s *Server) Store() store.Store {
	return s.st
}

// Scheduler returns the pipeline scheduler.
// Returns nil if the server hasn't started yet.
func (s *Server) Scheduler() *pipeline.Scheduler {
	return s.scheduler
}

// Classify returns the classification provider registry.
func (s *Server) Classify() *classify.Registry {
	return s.classifyReg
}

// Synthesis returns the synthesis provider registry.
func (s *Server) Synthesis() *synthesis.Registry {
	return s.synthReg
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or scheduler aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.st == nil || s.scheduler == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

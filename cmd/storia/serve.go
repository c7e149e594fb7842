package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/config"
	"github.com/asp2131/storia/internal/home"
	"github.com/asp2131/storia/internal/server"
	"github.com/asp2131/storia/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Storia server",
	Long: `Start the Storia HTTP server.

This opens the SQLite store in the home directory, starts the processing
pipeline, and serves the HTTP API. An exclusive lock on the home directory
prevents two servers from sharing one store.

The server provides:
  - /health     - Basic server health check
  - /ready      - Readiness check (store and scheduler)
  - /v1/books   - Ingestion, processing, and review endpoints
  - /swagger    - Interactive API documentation

Examples:
  storia serve                    # Start on default port 8080
  storia serve --port 3000        # Start on custom port
  storia serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// One server per home directory
		lock := flock.New(h.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire home lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another storia server is already using %s", h.Path())
		}
		defer lock.Unlock()

		// Load config from the home directory unless --config points elsewhere
		cfgPath := cfgFile
		if cfgPath == "" && h.ConfigExists() {
			cfgPath = h.ConfigPath()
		}
		mgr, err := config.NewManager(cfgPath)
		if err != nil {
			return err
		}
		c := mgr.Get()
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		mgr.WatchConfig()

		logger := newLogger(c.Log)

		// Flags override the configured bind address when set explicitly
		host := c.Server.Host
		port := c.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(server.Config{
			Host:            host,
			Port:            port,
			Home:            h,
			ConfigManager:   mgr,
			Logger:          logger,
			SwaggerSpecPath: endpoints.DefaultSpecPath(),
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// newLogger builds the process logger from the log config section.
func newLogger(c config.LogCfg) *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}

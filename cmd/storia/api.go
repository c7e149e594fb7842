package main

import (
	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Storia server via HTTP.

These commands require a running server (storia serve).
Use --server to specify a custom server URL.

Examples:
  storia api health                  # Check server health
  storia api books list              # List all books
  storia api books scenes <id>       # Scenes and soundscapes for a book`,
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book management commands",
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "Scene review commands",
}

var soundscapesCmd = &cobra.Command{
	Use:   "soundscapes",
	Short: "Soundscape audio commands",
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Pipeline introspection commands",
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Soundscape reuse cache commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	// Books as subcommand group
	booksCmd.AddCommand((&endpoints.CreateBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.ListBooksEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.GetBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.ProcessBookEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.BookScenesEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.BookCostsEndpoint{}).Command(getServerURL))
	booksCmd.AddCommand((&endpoints.DeleteBookEndpoint{}).Command(getServerURL))

	// Scene review as subcommand group
	scenesCmd.AddCommand((&endpoints.OverrideSoundscapeEndpoint{}).Command(getServerURL))

	// Soundscape audio download
	soundscapesCmd.AddCommand((&endpoints.SoundscapeAudioEndpoint{}).Command(getServerURL))

	// Pipeline and cache introspection
	pipelineCmd.AddCommand((&endpoints.PipelineStatusEndpoint{}).Command(getServerURL))
	cacheCmd.AddCommand((&endpoints.CacheStatsEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(booksCmd)
	apiCmd.AddCommand(scenesCmd)
	apiCmd.AddCommand(soundscapesCmd)
	apiCmd.AddCommand(pipelineCmd)
	apiCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(apiCmd)
}

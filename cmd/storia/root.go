package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "storia",
	Short: "Ambient soundscape pipeline for long-form text",
	Long: `Storia turns long-form text into ambient audio. Documents are split into
fixed-size pages, each page is classified into a set of scene descriptors,
contiguous pages with similar descriptors are grouped into scenes, and each
scene receives a synthesized ambient soundscape.

The pipeline includes:
  - Plain-text and Markdown ingestion with fixed-size pagination
  - Multi-provider page classification with schema-validated output
  - Descriptor-distance scene boundary detection
  - Ambient audio synthesis with fingerprint-based reuse`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ~/.storia/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "storia home directory (default: ~/.storia)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Runs before every command: pick up a local .env (ignore errors) and
	// apply the requested output format.
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

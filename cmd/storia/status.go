package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/home"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/server/endpoints"
	"github.com/asp2131/storia/internal/store"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show books and pipeline activity",
	Long: `Show every book with its processing state, plus scheduler and worker
pool counters when a server is running.

Talks to the running server when one is reachable and falls back to reading
the local store directly otherwise. Renders a table on a terminal and
structured output (see --output) when piped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(statusServerURL)
		var health endpoints.HealthResponse
		if err := client.Get(cmd.Context(), "/health", &health); err == nil {
			return serverStatus(cmd, client)
		}
		return localStatus(cmd)
	},
}

// serverStatus reads books and pipeline counters through the API.
func serverStatus(cmd *cobra.Command, client *api.Client) error {
	ctx := cmd.Context()

	var books endpoints.ListBooksResponse
	if err := client.Get(ctx, "/v1/books", &books); err != nil {
		return err
	}
	var pipe pipeline.Status
	if err := client.Get(ctx, "/v1/pipeline/status", &pipe); err != nil {
		return err
	}

	if !stdoutIsTTY() {
		return api.Output(map[string]any{
			"books":    books.Books,
			"pipeline": pipe,
		})
	}

	printBooksTable(cmd, books.Books)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nPipeline: %d/%d books active, %d waiting\n",
		len(pipe.Active), pipe.MaxBooks, len(pipe.Waiting))
	for _, pool := range pipe.Pools {
		fmt.Fprintf(out, "  %-11s %d workers, %d in flight, queue %d\n",
			pool.Name+":", pool.Workers, pool.InFlight, pool.QueueDepth)
	}
	return nil
}

// localStatus reads the store directly when no server is reachable.
func localStatus(cmd *cobra.Command) error {
	h, err := home.New(homeDir)
	if err != nil {
		return err
	}
	if !h.Exists() {
		return fmt.Errorf("no home directory at %s (run 'storia init')", h.Path())
	}

	st, err := store.OpenSQLite(h.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	books, err := st.ListBooks(cmd.Context())
	if err != nil {
		return err
	}

	if !stdoutIsTTY() {
		return api.Output(map[string]any{"books": books})
	}

	printBooksTable(cmd, books)
	fmt.Fprintln(cmd.OutOrStdout(), "\nServer not running, pipeline counters unavailable")
	return nil
}

func printBooksTable(cmd *cobra.Command, books []*store.Book) {
	out := cmd.OutOrStdout()
	if len(books) == 0 {
		fmt.Fprintln(out, "No books")
		return
	}

	rows := make([]table.Row, 0, len(books))
	for _, b := range books {
		rows = append(rows, table.Row{
			b.ID,
			b.Title,
			string(b.Status),
			b.PageCount,
			b.SceneCount,
			fmt.Sprintf("$%.2f", b.Cost),
			b.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable(
		table.Row{"ID", "Title", "Status", "Pages", "Scenes", "Cost", "Updated"},
		rows, 4, 5, 6,
	))
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/home"
	"github.com/asp2131/storia/internal/ingest"
	"github.com/asp2131/storia/internal/store"
)

var (
	ingestTitle  string
	ingestAuthor string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document>",
	Short: "Ingest a document into the local store",
	Long: `Ingest a document into the local store without a running server.

The document is split into pages and stored in the extracted state. Run
'storia process <book-id>' against a running server to classify and
synthesize it.

Supports plain text (.txt) and Markdown (.md) documents. The store uses WAL
mode, so ingesting while a server is running is fine.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		st, err := store.OpenSQLite(h.DBPath())
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := ingest.Ingest(cmd.Context(), st, ingest.Request{
			Path:   path,
			Title:  ingestTitle,
			Author: ingestAuthor,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %q (%d pages)\n", res.Title, res.PageCount)
		fmt.Printf("  Book ID: %s\n", res.BookID)
		fmt.Printf("\nProcess it with:\n  storia process %s\n", res.BookID)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Book title (default: derived from filename)")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "Book author")

	rootCmd.AddCommand(ingestCmd)
}

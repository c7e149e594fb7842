package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/server/endpoints"
)

var (
	processServerURL string
	processNoWait    bool
)

var processCmd = &cobra.Command{
	Use:   "process <book-id>",
	Short: "Run a book through the pipeline and wait for it to finish",
	Long: `Submit a book to the running server's pipeline and wait for a terminal
status, printing status transitions along the way.

Books in the extracted state are processed from scratch. Books already in a
terminal state are reset and re-run; pages and accumulated cost are kept.
Use --no-wait to submit and return immediately, like
'storia api books process'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID := args[0]
		client := api.NewClient(processServerURL)

		var submitted endpoints.ProcessBookResponse
		if err := client.Post(cmd.Context(), "/v1/books/"+bookID+"/process", nil, &submitted); err != nil {
			return err
		}
		fmt.Printf("Book %s queued\n", submitted.BookID)

		if processNoWait {
			return nil
		}

		lastStatus := ""
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-ticker.C:
			}

			var detail endpoints.BookDetailResponse
			if err := client.Get(cmd.Context(), "/v1/books/"+bookID, &detail); err != nil {
				return err
			}
			book := detail.Book

			if string(book.Status) != lastStatus {
				lastStatus = string(book.Status)
				fmt.Printf("  %s\n", book.Status)
			}

			if !book.Status.Terminal() {
				continue
			}

			fmt.Printf("\nBook %s finished: %s\n", book.ID, book.Status)
			fmt.Printf("  Pages:  %d\n", book.PageCount)
			fmt.Printf("  Scenes: %d\n", book.SceneCount)
			fmt.Printf("  Cost:   $%.2f\n", book.Cost)
			if book.Warning != "" {
				fmt.Printf("  Warning: %s\n", book.Warning)
			}
			for _, procErr := range detail.Errors {
				fmt.Printf("  Error (%s p%d): %s\n", procErr.Stage, procErr.PageNum, procErr.Message)
			}
			return nil
		}
	},
}

func init() {
	processCmd.Flags().StringVar(&processServerURL, "server", "http://localhost:8080", "Server URL")
	processCmd.Flags().BoolVar(&processNoWait, "no-wait", false, "Submit without waiting for completion")

	rootCmd.AddCommand(processCmd)
}

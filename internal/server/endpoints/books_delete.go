package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/svcctx"
)

// DeleteBookEndpoint handles DELETE /v1/books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/v1/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete a book
//	@Description	Delete a book and everything it owns: pages, scenes, soundscapes, errors, ledger, cache entries
//	@Tags			books
//	@Param			id	path	string	true	"Book ID"
//	@Success		204	"No Content"
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/books/{id} [delete]
func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	if scheduler := svcctx.SchedulerFrom(ctx); scheduler != nil && scheduler.Active(id) {
		writeError(w, http.StatusConflict, fmt.Sprintf("book %s is queued or processing", id))
		return
	}

	book, err := st.GetBook(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get book: %v", err))
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("book %s not found", id))
		return
	}
	if book.Status.Processing() {
		writeError(w, http.StatusConflict, fmt.Sprintf("book %s is %s", id, book.Status))
		return
	}

	if err := st.DeleteBook(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete book: %v", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			if err := client.Delete(ctx, "/v1/books/"+args[0]); err != nil {
				return err
			}
			fmt.Println("Book deleted")
			return nil
		},
	}
}

package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/svcctx"
)

// BookDetailResponse is one book with its processing error list.
type BookDetailResponse struct {
	Book   *store.Book        `json:"book"`
	Errors []*store.ProcError `json:"errors,omitempty"`
}

// GetBookEndpoint handles GET /v1/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a book
//	@Description	Get a book with status, cost, and processing errors
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	BookDetailResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	book, err := st.GetBook(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get book: %v", err))
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("book %s not found", id))
		return
	}

	procErrs, err := st.ListErrors(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list errors: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, BookDetailResponse{Book: book, Errors: procErrs})
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <book-id>",
		Short: "Get a book with its processing errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp BookDetailResponse
			if err := client.Get(ctx, "/v1/books/"+args[0], &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

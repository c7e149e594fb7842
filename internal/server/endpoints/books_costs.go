package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/cost"
	"github.com/asp2131/storia/internal/svcctx"
)

// BookCostsEndpoint handles GET /v1/books/{id}/costs.
type BookCostsEndpoint struct{}

func (e *BookCostsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/costs", e.handler
}

func (e *BookCostsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Book cost report
//	@Description	The book's running total with the ledger broken down by kind
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	cost.Summary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/books/{id}/costs [get]
func (e *BookCostsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	costs := svcctx.CostsFrom(ctx)
	if st == nil || costs == nil {
		writeError(w, http.StatusServiceUnavailable, "cost recorder not initialized")
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

	summary, err := costs.Summarize(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to summarize costs: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (e *BookCostsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "costs <book-id>",
		Short: "Show a book's cost report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp cost.Summary
			if err := client.Get(ctx, "/v1/books/"+args[0]+"/costs", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/svcctx"
)

// ProcessBookResponse is returned when a book is queued for processing.
type ProcessBookResponse struct {
	BookID string `json:"book_id"`
	Status string `json:"status"`
}

// ProcessBookEndpoint handles POST /v1/books/{id}/process.
type ProcessBookEndpoint struct{}

func (e *ProcessBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/books/{id}/process", e.handler
}

func (e *ProcessBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Process a book
//	@Description	Queue an extracted book for processing, or re-run a finished one
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		202	{object}	ProcessBookResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/books/{id}/process [post]
func (e *ProcessBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduler := svcctx.SchedulerFrom(ctx)
	if scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
		return
	}

	id := r.PathValue("id")
	if err := scheduler.Submit(ctx, id); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBookNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrAlreadyQueued), errors.Is(err, pipeline.ErrNotAdmissible):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ProcessBookResponse{BookID: id, Status: "queued"})
}

func (e *ProcessBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <book-id>",
		Short: "Queue a book for processing",
		Long: `Queue an extracted book for processing.

Books that already finished (ready_for_review or failed) are reset and fully
re-run; pages and accumulated cost are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp ProcessBookResponse
			if err := client.Post(ctx, "/v1/books/"+args[0]+"/process", nil, &resp); err != nil {
				return err
			}

			fmt.Printf("Book %s %s\n", resp.BookID, resp.Status)
			return nil
		},
	}
}

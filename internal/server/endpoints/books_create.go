package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/ingest"
	"github.com/asp2131/storia/internal/svcctx"
)

// CreateBookRequest is the request body for ingesting a document.
type CreateBookRequest struct {
	Path    string `json:"path,omitempty"`    // document file path on the server host
	Text    string `json:"text,omitempty"`    // inline document text
	Title   string `json:"title,omitempty"`   // derived from the filename if not provided
	Author  string `json:"author,omitempty"`
	Process *bool  `json:"process,omitempty"` // queue for processing after ingest, default true
}

// CreateBookResponse is the response for a successful ingest.
type CreateBookResponse struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	PageCount int    `json:"page_count"`
	Status    string `json:"status"`
}

// CreateBookEndpoint handles POST /v1/books.
type CreateBookEndpoint struct{}

func (e *CreateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/books", e.handler
}

func (e *CreateBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Ingest a document
//	@Description	Ingest a text document as a new book and optionally queue it for processing
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateBookRequest	true	"Ingest request"
//	@Success		202		{object}	CreateBookResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/v1/books [post]
func (e *CreateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" && req.Text == "" {
		writeError(w, http.StatusBadRequest, "path or text is required")
		return
	}

	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	res, err := ingest.Ingest(ctx, st, ingest.Request{
		Path:   req.Path,
		Text:   req.Text,
		Title:  req.Title,
		Author: req.Author,
		Logger: svcctx.LoggerFrom(ctx),
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := "extracted"
	if req.Process == nil || *req.Process {
		scheduler := svcctx.SchedulerFrom(ctx)
		if scheduler == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
			return
		}
		if err := scheduler.Submit(ctx, res.BookID); err != nil {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("book %s ingested but not queued: %v", res.BookID, err))
			return
		}
		status = "queued"
	}

	writeJSON(w, http.StatusAccepted, CreateBookResponse{
		BookID:    res.BookID,
		Title:     res.Title,
		Author:    res.Author,
		PageCount: res.PageCount,
		Status:    status,
	})
}

func (e *CreateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, author string
	var noProcess bool
	cmd := &cobra.Command{
		Use:   "create <document>",
		Short: "Ingest a text document as a new book",
		Long: `Ingest a .txt or .md document as a book.

Title is derived from the filename if not provided. The book is queued for
processing immediately unless --no-process is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid path %s: %w", args[0], err)
			}

			req := CreateBookRequest{Path: abs, Title: title, Author: author}
			if noProcess {
				process := false
				req.Process = &process
			}

			client := api.NewClient(getServerURL())
			var resp CreateBookResponse
			if err := client.Post(ctx, "/v1/books", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title (derived from filename if not provided)")
	cmd.Flags().StringVar(&author, "author", "", "Book author")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Ingest only, do not queue for processing")
	return cmd
}

// Package ingest turns a text document into an ordered set of persisted
// pages ready for pipeline admission.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/asp2131/storia/internal/store"
)

// ErrInvalidDocument marks ingest failures caused by the submitted document
// rather than by the system.
var ErrInvalidDocument = errors.New("invalid document")

// Request contains the parameters for ingesting a document. Either Path or
// Text must be set; Path wins when both are.
type Request struct {
	Path   string       // document file path (.txt or .md)
	Text   string       // inline document text
	Title  string       // optional, derived from the filename when empty
	Author string       // optional
	Logger *slog.Logger // optional logger for progress updates
}

// Result contains the result of a successful ingest.
type Result struct {
	BookID    string
	Title     string
	Author    string
	PageCount int
}

// Ingest reads the document, splits it into pages, and creates the Book with
// its pages persisted. The book is left in the extracted state, ready for
// the pipeline to pick up.
func Ingest(ctx context.Context, st store.Store, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	text := req.Text
	title := strings.TrimSpace(req.Title)

	if req.Path != "" {
		switch ext := strings.ToLower(filepath.Ext(req.Path)); ext {
		case ".txt", ".md":
		default:
			return nil, fmt.Errorf("%w: unsupported document type %q (want .txt or .md)", ErrInvalidDocument, ext)
		}
		data, err := os.ReadFile(req.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: read document: %v", ErrInvalidDocument, err)
		}
		text = string(data)
		if title == "" {
			title = deriveTitle(req.Path)
		}
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidDocument)
	}
	if title == "" {
		title = "Untitled"
	}

	pages := splitPages(text)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: document has no page-sized content", ErrInvalidDocument)
	}

	book := &store.Book{
		Title:  title,
		Author: req.Author,
		Status: store.StatusPending,
	}
	if err := st.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	log.Info("ingest started", "book_id", book.ID, "title", title, "pages", len(pages))

	if err := st.UpdateBookStatus(ctx, book.ID, store.StatusExtracting); err != nil {
		return nil, fmt.Errorf("mark extracting: %w", err)
	}

	records := make([]*store.Page, len(pages))
	for i, pageText := range pages {
		records[i] = &store.Page{
			BookID:    book.ID,
			Num:       i + 1,
			Text:      pageText,
			CharCount: utf8.RuneCountInString(pageText),
		}
	}
	if err := st.InsertPages(ctx, records); err != nil {
		if serr := st.UpdateBookStatus(ctx, book.ID, store.StatusFailed); serr != nil {
			log.Warn("mark failed after page insert error", "book_id", book.ID, "error", serr)
		}
		return nil, fmt.Errorf("persist pages: %w", err)
	}

	book.PageCount = len(records)
	book.Status = store.StatusExtracted
	if err := st.UpdateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("mark extracted: %w", err)
	}

	log.Info("ingest complete", "book_id", book.ID, "pages", len(records))

	return &Result{
		BookID:    book.ID,
		Title:     title,
		Author:    req.Author,
		PageCount: len(records),
	}, nil
}

// deriveTitle extracts a title from a document filename.
// e.g. "the-old-mill.txt" -> "the old mill"
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

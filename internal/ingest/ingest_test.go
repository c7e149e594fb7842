package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/asp2131/storia/internal/store"
)

func TestIngest_FromFile(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	text := sentences(17) + "\n\n" + sentences(17) + "\n\n" + sentences(17)
	path := filepath.Join(t.TempDir(), "winter-journey.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Ingest(ctx, st, Request{Path: path, Author: "A. Walker"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Title != "winter journey" {
		t.Errorf("title = %q, want %q", res.Title, "winter journey")
	}
	if res.Author != "A. Walker" {
		t.Errorf("author = %q, want %q", res.Author, "A. Walker")
	}
	if res.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", res.PageCount)
	}

	book, err := st.GetBook(ctx, res.BookID)
	if err != nil || book == nil {
		t.Fatalf("GetBook() = %v, %v", book, err)
	}
	if book.Status != store.StatusExtracted {
		t.Errorf("status = %s, want extracted", book.Status)
	}
	if book.PageCount != 3 {
		t.Errorf("book PageCount = %d, want 3", book.PageCount)
	}

	pages, err := st.ListPages(ctx, res.BookID)
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	for i, page := range pages {
		if page.Num != i+1 {
			t.Errorf("page %d Num = %d, want %d", i, page.Num, i+1)
		}
		if want := utf8.RuneCountInString(page.Text); page.CharCount != want {
			t.Errorf("page %d CharCount = %d, want %d", page.Num, page.CharCount, want)
		}
		if page.SceneID != "" {
			t.Errorf("page %d has a scene before analysis", page.Num)
		}
	}
}

func TestIngest_InlineText(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	res, err := Ingest(ctx, st, Request{Text: sentences(4), Title: "Evening Tales"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Title != "Evening Tales" {
		t.Errorf("title = %q, want %q", res.Title, "Evening Tales")
	}
	if res.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", res.PageCount)
	}

	book, _ := st.GetBook(ctx, res.BookID)
	if book == nil || book.Status != store.StatusExtracted {
		t.Fatalf("book = %+v, want extracted", book)
	}
}

func TestIngest_UntitledFallback(t *testing.T) {
	res, err := Ingest(context.Background(), store.NewMemoryStore(), Request{Text: sentences(4)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Title != "Untitled" {
		t.Errorf("title = %q, want Untitled", res.Title)
	}
}

func TestIngest_UnsupportedExtension(t *testing.T) {
	_, err := Ingest(context.Background(), store.NewMemoryStore(), Request{Path: "novel.pdf"})
	if err == nil || !strings.Contains(err.Error(), "unsupported document type") {
		t.Errorf("Ingest(.pdf) error = %v, want unsupported document type", err)
	}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Ingest(.pdf) error = %v, want ErrInvalidDocument", err)
	}
}

func TestIngest_RejectsEmptyDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	if _, err := Ingest(ctx, st, Request{Text: "   \n  "}); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Ingest(blank) error = %v, want ErrInvalidDocument", err)
	}
	if _, err := Ingest(ctx, st, Request{Text: "Chapter One"}); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Ingest(too short) error = %v, want ErrInvalidDocument", err)
	}

	books, err := st.ListBooks(ctx)
	if err != nil {
		t.Fatalf("ListBooks() error = %v", err)
	}
	if len(books) != 0 {
		t.Errorf("books created = %d, want 0 (rejection happens before create)", len(books))
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/to/winter-journey.txt", "winter journey"},
		{"/path/to/the_old_mill.md", "the old mill"},
		{"simple.txt", "simple"},
		{"many--dashes__here.txt", "many dashes here"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := deriveTitle(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

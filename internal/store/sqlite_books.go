package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const bookColumns = "id, title, author, status, page_count, scene_count, cost, warning, created_at, updated_at"

// CreateBook inserts a new book, assigning an ID and timestamps when unset.
func (s *SQLiteStore) CreateBook(ctx context.Context, book *Book) error {
	if book == nil {
		return errors.New("book is nil")
	}
	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	if book.Status == "" {
		book.Status = StatusPending
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	_, err := s.execWithRetry(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.Title,
		book.Author,
		book.Status,
		book.PageCount,
		book.SceneCount,
		book.Cost,
		book.Warning,
		formatTime(book.CreatedAt),
		formatTime(book.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetBook fetches a book by ID, returning nil when it does not exist.
func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// ListBooks returns books filtered by status set (or all books when no
// status is provided), oldest first.
func (s *SQLiteStore) ListBooks(ctx context.Context, statuses ...Status) ([]*Book, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + bookColumns + ` FROM books`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// UpdateBook persists a book's mutable fields. The cost column is excluded;
// it only moves through AddCost increments.
func (s *SQLiteStore) UpdateBook(ctx context.Context, book *Book) error {
	if book == nil {
		return errors.New("book is nil")
	}
	book.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(ctx,
		`UPDATE books
         SET title = ?, author = ?, status = ?, page_count = ?, scene_count = ?,
             warning = ?, updated_at = ?
         WHERE id = ?`,
		book.Title,
		book.Author,
		book.Status,
		book.PageCount,
		book.SceneCount,
		book.Warning,
		formatTime(book.UpdatedAt),
		book.ID,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// UpdateBookStatus moves a book to a new status.
func (s *SQLiteStore) UpdateBookStatus(ctx context.Context, id string, status Status) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE books SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update book status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("book %s not found", id)
	}
	return nil
}

// DeleteBook removes a book. Pages, scenes, soundscapes, errors, and ledger
// entries cascade through foreign keys; cache entries cascade with their
// soundscapes.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("book %s not found", id)
	}
	return nil
}

// InsertPages writes a batch of pages in one transaction.
func (s *SQLiteStore) InsertPages(ctx context.Context, pages []*Page) error {
	if len(pages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pages tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (id, book_id, num, text, char_count, scene_id) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare pages insert: %w", err)
	}
	defer stmt.Close()

	for _, page := range pages {
		if page.ID == "" {
			page.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, page.ID, page.BookID, page.Num, page.Text, page.CharCount, page.SceneID); err != nil {
			return fmt.Errorf("insert page %d: %w", page.Num, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pages: %w", err)
	}
	return nil
}

// ListPages returns a book's pages in reading order.
func (s *SQLiteStore) ListPages(ctx context.Context, bookID string) ([]*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, num, text, char_count, scene_id FROM pages WHERE book_id = ? ORDER BY num`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var page Page
		if err := rows.Scan(&page.ID, &page.BookID, &page.Num, &page.Text, &page.CharCount, &page.SceneID); err != nil {
			return nil, err
		}
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

func scanBook(scanner interface{ Scan(dest ...any) error }) (*Book, error) {
	var (
		book       Book
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&statusStr,
		&book.PageCount,
		&book.SceneCount,
		&book.Cost,
		&book.Warning,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	book.Status = Status(statusStr)
	book.CreatedAt = parseTime(createdRaw)
	book.UpdatedAt = parseTime(updatedRaw)
	return &book, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

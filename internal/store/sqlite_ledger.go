package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AppendError records a degraded step for the book.
func (s *SQLiteStore) AppendError(ctx context.Context, procErr *ProcError) error {
	if procErr == nil {
		return errors.New("error record is nil")
	}
	if procErr.CreatedAt.IsZero() {
		procErr.CreatedAt = time.Now().UTC()
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO proc_errors (book_id, stage, page_num, scene_id, kind, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		procErr.BookID,
		procErr.Stage,
		procErr.PageNum,
		procErr.SceneID,
		procErr.Kind,
		procErr.Message,
		formatTime(procErr.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append error: %w", err)
	}
	procErr.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// ListErrors returns a book's recorded errors in insertion order.
func (s *SQLiteStore) ListErrors(ctx context.Context, bookID string) ([]*ProcError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, stage, page_num, scene_id, kind, message, created_at
         FROM proc_errors WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var procErrs []*ProcError
	for rows.Next() {
		var (
			procErr    ProcError
			createdRaw string
		)
		if err := rows.Scan(&procErr.ID, &procErr.BookID, &procErr.Stage, &procErr.PageNum,
			&procErr.SceneID, &procErr.Kind, &procErr.Message, &createdRaw); err != nil {
			return nil, err
		}
		procErr.CreatedAt = parseTime(createdRaw)
		procErrs = append(procErrs, &procErr)
	}
	return procErrs, rows.Err()
}

// AddCost appends a ledger entry and bumps the book's total in the same
// transaction. The total is an increment, never a recomputation.
func (s *SQLiteStore) AddCost(ctx context.Context, entry *LedgerEntry) error {
	if entry == nil {
		return errors.New("ledger entry is nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin cost tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO cost_ledger (book_id, kind, units, cost, created_at) VALUES (?, ?, ?, ?, ?)`,
			entry.BookID,
			entry.Kind,
			entry.Units,
			entry.Cost,
			formatTime(entry.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if entry.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET cost = cost + ?, updated_at = ? WHERE id = ?`,
			entry.Cost,
			formatTime(time.Now()),
			entry.BookID,
		); err != nil {
			return fmt.Errorf("increment book cost: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit cost: %w", err)
		}
		return nil
	})
}

// ListLedger returns a book's billable events in insertion order.
func (s *SQLiteStore) ListLedger(ctx context.Context, bookID string) ([]*LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, kind, units, cost, created_at
         FROM cost_ledger WHERE book_id = ? ORDER BY id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		var (
			entry      LedgerEntry
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.BookID, &entry.Kind, &entry.Units, &entry.Cost, &createdRaw); err != nil {
			return nil, err
		}
		entry.CreatedAt = parseTime(createdRaw)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// ResetForReprocess clears analysis output so a book can run again. Pages
// and accumulated cost survive; the book returns to extracted.
func (s *SQLiteStore) ResetForReprocess(ctx context.Context, bookID string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin reset tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// cache_index rows cascade with their soundscapes
		if _, err := tx.ExecContext(ctx, `DELETE FROM soundscapes WHERE book_id = ?`, bookID); err != nil {
			return fmt.Errorf("delete soundscapes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE book_id = ?`, bookID); err != nil {
			return fmt.Errorf("delete scenes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM proc_errors WHERE book_id = ?`, bookID); err != nil {
			return fmt.Errorf("delete errors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET scene_id = '' WHERE book_id = ?`, bookID); err != nil {
			return fmt.Errorf("clear page scene refs: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE books SET status = ?, scene_count = 0, warning = '', updated_at = ? WHERE id = ?`,
			StatusExtracted,
			formatTime(time.Now()),
			bookID,
		)
		if err != nil {
			return fmt.Errorf("reset book: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("book %s not found", bookID)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit reset: %w", err)
		}
		return nil
	})
}

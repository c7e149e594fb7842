// Package store persists books, pages, scenes, soundscapes, processing
// errors, and the cost ledger. Get-style operations return (nil, nil) when
// the record does not exist.
package store

import "context"

// Store is the persistence interface the pipeline and API consume.
type Store interface {
	// Books. DeleteBook cascades to pages, scenes, soundscapes, errors, the
	// ledger, and cache entries owned by the book's soundscapes.
	CreateBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id string) (*Book, error)
	ListBooks(ctx context.Context, statuses ...Status) ([]*Book, error)
	UpdateBook(ctx context.Context, book *Book) error
	UpdateBookStatus(ctx context.Context, id string, status Status) error
	DeleteBook(ctx context.Context, id string) error

	// Pages
	InsertPages(ctx context.Context, pages []*Page) error
	ListPages(ctx context.Context, bookID string) ([]*Page, error)

	// Scenes. AttachScenePages sets the scene back-reference on every page in
	// the scene's inclusive page range.
	InsertScene(ctx context.Context, scene *Scene) error
	GetScene(ctx context.Context, id string) (*Scene, error)
	ListScenes(ctx context.Context, bookID string) ([]*Scene, error)
	AttachScenePages(ctx context.Context, bookID, sceneID string, startPage, endPage int) error
	AttachSoundscape(ctx context.Context, sceneID, soundscapeID string) error

	// Soundscapes
	InsertSoundscape(ctx context.Context, soundscape *Soundscape) error
	GetSoundscape(ctx context.Context, id string) (*Soundscape, error)

	// Processing errors
	AppendError(ctx context.Context, procErr *ProcError) error
	ListErrors(ctx context.Context, bookID string) ([]*ProcError, error)

	// Cost. AddCost appends a ledger entry and increments the book total in
	// one step; the total is never recomputed from the ledger.
	AddCost(ctx context.Context, entry *LedgerEntry) error
	ListLedger(ctx context.Context, bookID string) ([]*LedgerEntry, error)

	// Soundscape cache index. CacheInsert is first-writer-wins: it reports
	// false when the fingerprint already had a canonical entry. CacheLookup
	// skips the entry when its soundscape belongs to excludeBookID.
	CacheInsert(ctx context.Context, fingerprint, soundscapeID string) (bool, error)
	CacheLookup(ctx context.Context, fingerprint, excludeBookID string) (*Soundscape, error)
	CacheEntries(ctx context.Context) (int, error)

	// ResetForReprocess deletes scenes, soundscapes, and errors for the book,
	// keeps pages and accumulated cost, and moves it back to extracted.
	ResetForReprocess(ctx context.Context, bookID string) error

	Close() error
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with mutex-guarded maps. It backs unit tests
// and ephemeral runs, with the same semantics as the SQLite store.
// Error injection fields let tests exercise failure paths.
type MemoryStore struct {
	mu sync.RWMutex

	books       map[string]*Book
	pages       map[string][]*Page  // by book ID
	scenes      map[string][]*Scene // by book ID
	soundscapes map[string]*Soundscape
	procErrs    map[string][]*ProcError   // by book ID
	ledger      map[string][]*LedgerEntry // by book ID
	cacheIndex  map[string]string         // fingerprint -> soundscape ID

	nextErrID    int64
	nextLedgerID int64

	// --- Error injection for tests ---

	// InsertSceneErr is returned by InsertScene when non-nil.
	InsertSceneErr error
	// InsertSoundscapeErr is returned by InsertSoundscape when non-nil.
	InsertSoundscapeErr error
	// AddCostErr is returned by AddCost when non-nil.
	AddCostErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:       make(map[string]*Book),
		pages:       make(map[string][]*Page),
		scenes:      make(map[string][]*Scene),
		soundscapes: make(map[string]*Soundscape),
		procErrs:    make(map[string][]*ProcError),
		ledger:      make(map[string][]*LedgerEntry),
		cacheIndex:  make(map[string]string),
	}
}

// CreateBook inserts a new book, assigning an ID and timestamps when unset.
func (m *MemoryStore) CreateBook(_ context.Context, book *Book) error {
	if book == nil {
		return errors.New("book is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	if _, exists := m.books[book.ID]; exists {
		return fmt.Errorf("book %s already exists", book.ID)
	}
	if book.Status == "" {
		book.Status = StatusPending
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	copied := *book
	m.books[book.ID] = &copied
	return nil
}

// GetBook fetches a book by ID, returning nil when it does not exist.
func (m *MemoryStore) GetBook(_ context.Context, id string) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	if !ok {
		return nil, nil
	}
	copied := *book
	return &copied, nil
}

// ListBooks returns books filtered by status set, oldest first.
func (m *MemoryStore) ListBooks(_ context.Context, statuses ...Status) ([]*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[Status]bool, len(statuses))
	for _, status := range statuses {
		want[status] = true
	}

	var books []*Book
	for _, book := range m.books {
		if len(want) > 0 && !want[book.Status] {
			continue
		}
		copied := *book
		books = append(books, &copied)
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].ID < books[j].ID
		}
		return books[i].CreatedAt.Before(books[j].CreatedAt)
	})
	return books, nil
}

// UpdateBook persists a book's mutable fields; cost only moves via AddCost.
func (m *MemoryStore) UpdateBook(_ context.Context, book *Book) error {
	if book == nil {
		return errors.New("book is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.books[book.ID]
	if !ok {
		return fmt.Errorf("book %s not found", book.ID)
	}
	existing.Title = book.Title
	existing.Author = book.Author
	existing.Status = book.Status
	existing.PageCount = book.PageCount
	existing.SceneCount = book.SceneCount
	existing.Warning = book.Warning
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateBookStatus moves a book to a new status.
func (m *MemoryStore) UpdateBookStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[id]
	if !ok {
		return fmt.Errorf("book %s not found", id)
	}
	book.Status = status
	book.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteBook removes a book and everything it owns.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return fmt.Errorf("book %s not found", id)
	}

	for fingerprint, soundscapeID := range m.cacheIndex {
		if soundscape, ok := m.soundscapes[soundscapeID]; ok && soundscape.BookID == id {
			delete(m.cacheIndex, fingerprint)
		}
	}
	for soundscapeID, soundscape := range m.soundscapes {
		if soundscape.BookID == id {
			delete(m.soundscapes, soundscapeID)
		}
	}
	delete(m.books, id)
	delete(m.pages, id)
	delete(m.scenes, id)
	delete(m.procErrs, id)
	delete(m.ledger, id)
	return nil
}

// InsertPages writes a batch of pages.
func (m *MemoryStore) InsertPages(_ context.Context, pages []*Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, page := range pages {
		if page.ID == "" {
			page.ID = uuid.New().String()
		}
		copied := *page
		m.pages[page.BookID] = append(m.pages[page.BookID], &copied)
	}
	return nil
}

// ListPages returns a book's pages in reading order.
func (m *MemoryStore) ListPages(_ context.Context, bookID string) ([]*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pages := make([]*Page, 0, len(m.pages[bookID]))
	for _, page := range m.pages[bookID] {
		copied := *page
		pages = append(pages, &copied)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Num < pages[j].Num })
	if len(pages) == 0 {
		return nil, nil
	}
	return pages, nil
}

// InsertScene writes one detected scene.
func (m *MemoryStore) InsertScene(_ context.Context, scene *Scene) error {
	if m.InsertSceneErr != nil {
		return m.InsertSceneErr
	}
	if scene == nil {
		return errors.New("scene is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if scene.ID == "" {
		scene.ID = uuid.New().String()
	}
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = time.Now().UTC()
	}
	copied := *scene
	m.scenes[scene.BookID] = append(m.scenes[scene.BookID], &copied)
	return nil
}

// GetScene fetches a scene by ID, returning nil when it does not exist.
func (m *MemoryStore) GetScene(_ context.Context, id string) (*Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, scenes := range m.scenes {
		for _, scene := range scenes {
			if scene.ID == id {
				copied := *scene
				return &copied, nil
			}
		}
	}
	return nil, nil
}

// ListScenes returns a book's scenes in reading order.
func (m *MemoryStore) ListScenes(_ context.Context, bookID string) ([]*Scene, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scenes := make([]*Scene, 0, len(m.scenes[bookID]))
	for _, scene := range m.scenes[bookID] {
		copied := *scene
		scenes = append(scenes, &copied)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Index < scenes[j].Index })
	if len(scenes) == 0 {
		return nil, nil
	}
	return scenes, nil
}

// AttachScenePages sets the scene back-reference on pages in the range.
func (m *MemoryStore) AttachScenePages(_ context.Context, bookID, sceneID string, startPage, endPage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, page := range m.pages[bookID] {
		if page.Num >= startPage && page.Num <= endPage {
			page.SceneID = sceneID
		}
	}
	return nil
}

// AttachSoundscape points a scene at its soundscape record.
func (m *MemoryStore) AttachSoundscape(_ context.Context, sceneID, soundscapeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, scenes := range m.scenes {
		for _, scene := range scenes {
			if scene.ID == sceneID {
				scene.SoundscapeID = soundscapeID
				return nil
			}
		}
	}
	return fmt.Errorf("scene %s not found", sceneID)
}

// InsertSoundscape writes a soundscape record.
func (m *MemoryStore) InsertSoundscape(_ context.Context, soundscape *Soundscape) error {
	if m.InsertSoundscapeErr != nil {
		return m.InsertSoundscapeErr
	}
	if soundscape == nil {
		return errors.New("soundscape is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if soundscape.ID == "" {
		soundscape.ID = uuid.New().String()
	}
	if soundscape.CreatedAt.IsZero() {
		soundscape.CreatedAt = time.Now().UTC()
	}
	if soundscape.Format == "" {
		soundscape.Format = "mp3"
	}
	copied := *soundscape
	m.soundscapes[soundscape.ID] = &copied
	return nil
}

// GetSoundscape fetches a soundscape by ID, returning nil when it does not
// exist.
func (m *MemoryStore) GetSoundscape(_ context.Context, id string) (*Soundscape, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	soundscape, ok := m.soundscapes[id]
	if !ok {
		return nil, nil
	}
	copied := *soundscape
	return &copied, nil
}

// AppendError records a degraded step for the book.
func (m *MemoryStore) AppendError(_ context.Context, procErr *ProcError) error {
	if procErr == nil {
		return errors.New("error record is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextErrID++
	procErr.ID = m.nextErrID
	if procErr.CreatedAt.IsZero() {
		procErr.CreatedAt = time.Now().UTC()
	}
	copied := *procErr
	m.procErrs[procErr.BookID] = append(m.procErrs[procErr.BookID], &copied)
	return nil
}

// ListErrors returns a book's recorded errors in insertion order.
func (m *MemoryStore) ListErrors(_ context.Context, bookID string) ([]*ProcError, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	procErrs := make([]*ProcError, 0, len(m.procErrs[bookID]))
	for _, procErr := range m.procErrs[bookID] {
		copied := *procErr
		procErrs = append(procErrs, &copied)
	}
	if len(procErrs) == 0 {
		return nil, nil
	}
	return procErrs, nil
}

// AddCost appends a ledger entry and bumps the book's total.
func (m *MemoryStore) AddCost(_ context.Context, entry *LedgerEntry) error {
	if m.AddCostErr != nil {
		return m.AddCostErr
	}
	if entry == nil {
		return errors.New("ledger entry is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[entry.BookID]
	if !ok {
		return fmt.Errorf("book %s not found", entry.BookID)
	}

	m.nextLedgerID++
	entry.ID = m.nextLedgerID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	copied := *entry
	m.ledger[entry.BookID] = append(m.ledger[entry.BookID], &copied)
	book.Cost += entry.Cost
	book.UpdatedAt = time.Now().UTC()
	return nil
}

// ListLedger returns a book's billable events in insertion order.
func (m *MemoryStore) ListLedger(_ context.Context, bookID string) ([]*LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*LedgerEntry, 0, len(m.ledger[bookID]))
	for _, entry := range m.ledger[bookID] {
		copied := *entry
		entries = append(entries, &copied)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries, nil
}

// CacheInsert claims the canonical entry for a fingerprint; first writer
// wins.
func (m *MemoryStore) CacheInsert(_ context.Context, fingerprint, soundscapeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cacheIndex[fingerprint]; exists {
		return false, nil
	}
	m.cacheIndex[fingerprint] = soundscapeID
	return true, nil
}

// CacheLookup returns the canonical soundscape for a fingerprint, or nil.
func (m *MemoryStore) CacheLookup(_ context.Context, fingerprint, excludeBookID string) (*Soundscape, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.cacheIndex[fingerprint]
	if !ok {
		return nil, nil
	}
	soundscape, ok := m.soundscapes[id]
	if !ok {
		return nil, nil
	}
	if excludeBookID != "" && soundscape.BookID == excludeBookID {
		return nil, nil
	}
	copied := *soundscape
	return &copied, nil
}

// CacheEntries counts canonical cache entries.
func (m *MemoryStore) CacheEntries(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cacheIndex), nil
}

// ResetForReprocess clears analysis output so a book can run again.
func (m *MemoryStore) ResetForReprocess(_ context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[bookID]
	if !ok {
		return fmt.Errorf("book %s not found", bookID)
	}

	// cache entries go away with the book's soundscapes
	for fingerprint, soundscapeID := range m.cacheIndex {
		if soundscape, ok := m.soundscapes[soundscapeID]; ok && soundscape.BookID == bookID {
			delete(m.cacheIndex, fingerprint)
		}
	}
	for id, soundscape := range m.soundscapes {
		if soundscape.BookID == bookID {
			delete(m.soundscapes, id)
		}
	}
	delete(m.scenes, bookID)
	delete(m.procErrs, bookID)
	for _, page := range m.pages[bookID] {
		page.SceneID = ""
	}

	book.Status = StatusExtracted
	book.SceneCount = 0
	book.Warning = ""
	book.UpdatedAt = time.Now().UTC()
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)

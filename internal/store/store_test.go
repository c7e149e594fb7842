package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asp2131/storia/internal/descriptor"
)

// withStores runs the same assertions against both backends.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "storia.db"))
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})
}

func mustCreateBook(t *testing.T, s Store, title string) *Book {
	t.Helper()
	book := &Book{Title: title}
	if err := s.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	return book
}

func forestDescriptors() descriptor.Set {
	return descriptor.Set{
		Mood:             "tense",
		Setting:          "forest",
		TimeOfDay:        "night",
		Weather:          "storm",
		ActivityLevel:    "high",
		Atmosphere:       "ominous",
		SceneType:        "action",
		DominantElements: "wind, rain",
	}
}

func TestBookLifecycle(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "The Hollow Wood")

		if book.ID == "" {
			t.Fatal("CreateBook should assign an ID")
		}
		if book.Status != StatusPending {
			t.Errorf("new book status = %q, want %q", book.Status, StatusPending)
		}

		got, err := s.GetBook(ctx, book.ID)
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if got == nil || got.Title != "The Hollow Wood" {
			t.Fatalf("GetBook() = %+v, want the created book", got)
		}

		missing, err := s.GetBook(ctx, "nope")
		if err != nil {
			t.Fatalf("GetBook(missing) error = %v", err)
		}
		if missing != nil {
			t.Error("GetBook(missing) should return nil")
		}

		if err := s.UpdateBookStatus(ctx, book.ID, StatusAnalyzing); err != nil {
			t.Fatalf("UpdateBookStatus() error = %v", err)
		}
		got, _ = s.GetBook(ctx, book.ID)
		if got.Status != StatusAnalyzing {
			t.Errorf("status = %q, want %q", got.Status, StatusAnalyzing)
		}

		if err := s.UpdateBookStatus(ctx, "nope", StatusFailed); err == nil {
			t.Error("UpdateBookStatus(missing) should error")
		}

		other := mustCreateBook(t, s, "Second Book")
		analyzing, err := s.ListBooks(ctx, StatusAnalyzing)
		if err != nil {
			t.Fatalf("ListBooks() error = %v", err)
		}
		if len(analyzing) != 1 || analyzing[0].ID != book.ID {
			t.Errorf("ListBooks(analyzing) = %d books, want just the first", len(analyzing))
		}

		all, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("ListBooks() error = %v", err)
		}
		if len(all) != 2 {
			t.Errorf("ListBooks() = %d books, want 2", len(all))
		}
		_ = other
	})
}

func TestPagesRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Paged")

		pages := []*Page{
			{BookID: book.ID, Num: 1, Text: "first page", CharCount: 10},
			{BookID: book.ID, Num: 2, Text: "second page", CharCount: 11},
			{BookID: book.ID, Num: 3, Text: "third page", CharCount: 10},
		}
		if err := s.InsertPages(ctx, pages); err != nil {
			t.Fatalf("InsertPages() error = %v", err)
		}

		got, err := s.ListPages(ctx, book.ID)
		if err != nil {
			t.Fatalf("ListPages() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("ListPages() = %d pages, want 3", len(got))
		}
		for i, page := range got {
			if page.Num != i+1 {
				t.Errorf("page[%d].Num = %d, want %d", i, page.Num, i+1)
			}
		}
	})
}

func TestScenesAndSoundscapes(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Scened")

		pages := []*Page{
			{BookID: book.ID, Num: 1, Text: "one", CharCount: 3},
			{BookID: book.ID, Num: 2, Text: "two", CharCount: 3},
			{BookID: book.ID, Num: 3, Text: "three", CharCount: 5},
			{BookID: book.ID, Num: 4, Text: "four", CharCount: 4},
			{BookID: book.ID, Num: 5, Text: "five", CharCount: 4},
		}
		if err := s.InsertPages(ctx, pages); err != nil {
			t.Fatalf("InsertPages() error = %v", err)
		}

		scene := &Scene{
			BookID:      book.ID,
			Index:       0,
			StartPage:   1,
			EndPage:     4,
			Descriptors: forestDescriptors(),
		}
		if err := s.InsertScene(ctx, scene); err != nil {
			t.Fatalf("InsertScene() error = %v", err)
		}
		if err := s.AttachScenePages(ctx, book.ID, scene.ID, scene.StartPage, scene.EndPage); err != nil {
			t.Fatalf("AttachScenePages() error = %v", err)
		}

		listed, err := s.ListPages(ctx, book.ID)
		if err != nil {
			t.Fatalf("ListPages() error = %v", err)
		}
		for _, page := range listed {
			want := scene.ID
			if page.Num > 4 {
				want = ""
			}
			if page.SceneID != want {
				t.Errorf("page %d scene ref = %q, want %q", page.Num, page.SceneID, want)
			}
		}

		fetched, err := s.GetScene(ctx, scene.ID)
		if err != nil {
			t.Fatalf("GetScene() error = %v", err)
		}
		if fetched == nil || fetched.StartPage != 1 || fetched.EndPage != 4 {
			t.Errorf("GetScene() = %+v", fetched)
		}
		if missing, err := s.GetScene(ctx, "no-such-scene"); err != nil || missing != nil {
			t.Errorf("GetScene(miss) = %v, %v, want nil, nil", missing, err)
		}

		soundscape := &Soundscape{
			SceneID:      scene.ID,
			BookID:       book.ID,
			Fingerprint:  "forest|tense|high",
			Prompt:       "storm in a forest",
			URL:          "file:///audio/x.mp3",
			ObjectKey:    "bk/sc.mp3",
			DurationSecs: 20,
			Source:       SourceSynthesized,
		}
		if err := s.InsertSoundscape(ctx, soundscape); err != nil {
			t.Fatalf("InsertSoundscape() error = %v", err)
		}
		if err := s.AttachSoundscape(ctx, scene.ID, soundscape.ID); err != nil {
			t.Fatalf("AttachSoundscape() error = %v", err)
		}

		scenes, err := s.ListScenes(ctx, book.ID)
		if err != nil {
			t.Fatalf("ListScenes() error = %v", err)
		}
		if len(scenes) != 1 {
			t.Fatalf("ListScenes() = %d scenes, want 1", len(scenes))
		}
		if scenes[0].SoundscapeID != soundscape.ID {
			t.Errorf("scene soundscape = %q, want %q", scenes[0].SoundscapeID, soundscape.ID)
		}
		if scenes[0].Descriptors.Setting != "forest" {
			t.Errorf("descriptors did not round trip: %+v", scenes[0].Descriptors)
		}

		got, err := s.GetSoundscape(ctx, soundscape.ID)
		if err != nil {
			t.Fatalf("GetSoundscape() error = %v", err)
		}
		if got == nil || got.URL != "file:///audio/x.mp3" {
			t.Errorf("GetSoundscape() = %+v", got)
		}
		if got != nil && got.ObjectKey != "bk/sc.mp3" {
			t.Errorf("ObjectKey = %q, want %q", got.ObjectKey, "bk/sc.mp3")
		}
	})
}

func TestCostIncrements(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Billed")

		entries := []*LedgerEntry{
			{BookID: book.ID, Kind: LedgerClassification, Units: 4, Cost: 4},
			{BookID: book.ID, Kind: LedgerSynthesis, Units: 20, Cost: 10},
		}
		for _, entry := range entries {
			if err := s.AddCost(ctx, entry); err != nil {
				t.Fatalf("AddCost() error = %v", err)
			}
		}

		got, _ := s.GetBook(ctx, book.ID)
		if got.Cost != 14 {
			t.Errorf("book cost = %v, want 14", got.Cost)
		}

		// UpdateBook must not clobber the accumulated cost.
		got.Warning = "partial"
		if err := s.UpdateBook(ctx, got); err != nil {
			t.Fatalf("UpdateBook() error = %v", err)
		}
		again, _ := s.GetBook(ctx, book.ID)
		if again.Cost != 14 {
			t.Errorf("cost after UpdateBook = %v, want 14", again.Cost)
		}
		if again.Warning != "partial" {
			t.Errorf("warning = %q, want partial", again.Warning)
		}

		ledger, err := s.ListLedger(ctx, book.ID)
		if err != nil {
			t.Fatalf("ListLedger() error = %v", err)
		}
		if len(ledger) != 2 {
			t.Errorf("ledger entries = %d, want 2", len(ledger))
		}
	})
}

func TestCacheFirstWriterWins(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		bookA := mustCreateBook(t, s, "Book A")
		bookB := mustCreateBook(t, s, "Book B")

		first := &Soundscape{BookID: bookA.ID, Fingerprint: "forest|tense|high", URL: "file:///a.mp3", DurationSecs: 20, Source: SourceSynthesized}
		second := &Soundscape{BookID: bookB.ID, Fingerprint: "forest|tense|high", URL: "file:///b.mp3", DurationSecs: 20, Source: SourceSynthesized}
		for _, soundscape := range []*Soundscape{first, second} {
			if err := s.InsertSoundscape(ctx, soundscape); err != nil {
				t.Fatalf("InsertSoundscape() error = %v", err)
			}
		}

		won, err := s.CacheInsert(ctx, "forest|tense|high", first.ID)
		if err != nil {
			t.Fatalf("CacheInsert() error = %v", err)
		}
		if !won {
			t.Error("first insert should win")
		}

		won, err = s.CacheInsert(ctx, "forest|tense|high", second.ID)
		if err != nil {
			t.Fatalf("CacheInsert() error = %v", err)
		}
		if won {
			t.Error("second insert must be discarded")
		}

		hit, err := s.CacheLookup(ctx, "forest|tense|high", "")
		if err != nil {
			t.Fatalf("CacheLookup() error = %v", err)
		}
		if hit == nil || hit.URL != "file:///a.mp3" {
			t.Errorf("CacheLookup() = %+v, want the first writer's record", hit)
		}

		// Entry from the same book does not serve when excluded.
		excluded, err := s.CacheLookup(ctx, "forest|tense|high", bookA.ID)
		if err != nil {
			t.Fatalf("CacheLookup() error = %v", err)
		}
		if excluded != nil {
			t.Error("same-book lookup should miss when excluded")
		}

		// A different book still gets the hit.
		other, err := s.CacheLookup(ctx, "forest|tense|high", bookB.ID)
		if err != nil {
			t.Fatalf("CacheLookup() error = %v", err)
		}
		if other == nil {
			t.Error("other-book lookup should hit")
		}

		count, err := s.CacheEntries(ctx)
		if err != nil {
			t.Fatalf("CacheEntries() error = %v", err)
		}
		if count != 1 {
			t.Errorf("CacheEntries() = %d, want 1", count)
		}
	})
}

func TestErrorsAppendAndList(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Flawed")

		if err := s.AppendError(ctx, &ProcError{
			BookID: book.ID, Stage: "classify", PageNum: 3, Kind: "parse_failure", Message: "no JSON object",
		}); err != nil {
			t.Fatalf("AppendError() error = %v", err)
		}
		if err := s.AppendError(ctx, &ProcError{
			BookID: book.ID, Stage: "synthesis", SceneID: "scene-1", Kind: "synthesis_timeout", Message: "budget exhausted",
		}); err != nil {
			t.Fatalf("AppendError() error = %v", err)
		}

		procErrs, err := s.ListErrors(ctx, book.ID)
		if err != nil {
			t.Fatalf("ListErrors() error = %v", err)
		}
		if len(procErrs) != 2 {
			t.Fatalf("ListErrors() = %d, want 2", len(procErrs))
		}
		if procErrs[0].PageNum != 3 || procErrs[0].Kind != "parse_failure" {
			t.Errorf("first error = %+v", procErrs[0])
		}
	})
}

func TestResetForReprocess(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Resettable")

		if err := s.InsertPages(ctx, []*Page{{BookID: book.ID, Num: 1, Text: "text", CharCount: 4}}); err != nil {
			t.Fatalf("InsertPages() error = %v", err)
		}
		scene := &Scene{BookID: book.ID, Index: 0, StartPage: 1, EndPage: 1, Descriptors: forestDescriptors()}
		if err := s.InsertScene(ctx, scene); err != nil {
			t.Fatalf("InsertScene() error = %v", err)
		}
		if err := s.AttachScenePages(ctx, book.ID, scene.ID, 1, 1); err != nil {
			t.Fatalf("AttachScenePages() error = %v", err)
		}
		soundscape := &Soundscape{SceneID: scene.ID, BookID: book.ID, Fingerprint: "forest|tense|high", URL: "file:///a.mp3", DurationSecs: 20, Source: SourceSynthesized}
		if err := s.InsertSoundscape(ctx, soundscape); err != nil {
			t.Fatalf("InsertSoundscape() error = %v", err)
		}
		if _, err := s.CacheInsert(ctx, soundscape.Fingerprint, soundscape.ID); err != nil {
			t.Fatalf("CacheInsert() error = %v", err)
		}
		if err := s.AppendError(ctx, &ProcError{BookID: book.ID, Stage: "classify", Kind: "transport", Message: "503"}); err != nil {
			t.Fatalf("AppendError() error = %v", err)
		}
		if err := s.AddCost(ctx, &LedgerEntry{BookID: book.ID, Kind: LedgerClassification, Units: 1, Cost: 1}); err != nil {
			t.Fatalf("AddCost() error = %v", err)
		}

		if err := s.ResetForReprocess(ctx, book.ID); err != nil {
			t.Fatalf("ResetForReprocess() error = %v", err)
		}

		got, _ := s.GetBook(ctx, book.ID)
		if got.Status != StatusExtracted {
			t.Errorf("status after reset = %q, want %q", got.Status, StatusExtracted)
		}
		if got.Cost != 1 {
			t.Errorf("cost after reset = %v, want 1 (cost survives reprocess)", got.Cost)
		}

		if scenes, _ := s.ListScenes(ctx, book.ID); len(scenes) != 0 {
			t.Errorf("scenes after reset = %d, want 0", len(scenes))
		}
		if procErrs, _ := s.ListErrors(ctx, book.ID); len(procErrs) != 0 {
			t.Errorf("errors after reset = %d, want 0", len(procErrs))
		}
		pages, _ := s.ListPages(ctx, book.ID)
		if len(pages) != 1 {
			t.Errorf("pages after reset = %d, want 1 (pages survive)", len(pages))
		} else if pages[0].SceneID != "" {
			t.Errorf("page scene ref after reset = %q, want cleared", pages[0].SceneID)
		}
		if count, _ := s.CacheEntries(ctx); count != 0 {
			t.Errorf("cache entries after reset = %d, want 0", count)
		}
	})
}

func TestDeleteBookCascades(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		book := mustCreateBook(t, s, "Doomed")
		survivor := mustCreateBook(t, s, "Survivor")

		if err := s.InsertPages(ctx, []*Page{{BookID: book.ID, Num: 1, Text: "text", CharCount: 4}}); err != nil {
			t.Fatalf("InsertPages() error = %v", err)
		}
		scene := &Scene{BookID: book.ID, Index: 0, StartPage: 1, EndPage: 1, Descriptors: forestDescriptors()}
		if err := s.InsertScene(ctx, scene); err != nil {
			t.Fatalf("InsertScene() error = %v", err)
		}
		soundscape := &Soundscape{SceneID: scene.ID, BookID: book.ID, Fingerprint: "forest|tense|high", URL: "file:///a.mp3", DurationSecs: 20, Source: SourceSynthesized}
		if err := s.InsertSoundscape(ctx, soundscape); err != nil {
			t.Fatalf("InsertSoundscape() error = %v", err)
		}
		if _, err := s.CacheInsert(ctx, soundscape.Fingerprint, soundscape.ID); err != nil {
			t.Fatalf("CacheInsert() error = %v", err)
		}
		if err := s.AppendError(ctx, &ProcError{BookID: book.ID, Stage: "classify", Kind: "transport", Message: "503"}); err != nil {
			t.Fatalf("AppendError() error = %v", err)
		}
		if err := s.AddCost(ctx, &LedgerEntry{BookID: book.ID, Kind: LedgerClassification, Units: 1, Cost: 1}); err != nil {
			t.Fatalf("AddCost() error = %v", err)
		}

		if err := s.DeleteBook(ctx, book.ID); err != nil {
			t.Fatalf("DeleteBook() error = %v", err)
		}

		if got, _ := s.GetBook(ctx, book.ID); got != nil {
			t.Error("book should be gone")
		}
		if pages, _ := s.ListPages(ctx, book.ID); len(pages) != 0 {
			t.Errorf("pages after delete = %d, want 0", len(pages))
		}
		if scenes, _ := s.ListScenes(ctx, book.ID); len(scenes) != 0 {
			t.Errorf("scenes after delete = %d, want 0", len(scenes))
		}
		if got, _ := s.GetSoundscape(ctx, soundscape.ID); got != nil {
			t.Error("soundscape should be gone")
		}
		if procErrs, _ := s.ListErrors(ctx, book.ID); len(procErrs) != 0 {
			t.Errorf("errors after delete = %d, want 0", len(procErrs))
		}
		if entries, _ := s.ListLedger(ctx, book.ID); len(entries) != 0 {
			t.Errorf("ledger after delete = %d, want 0", len(entries))
		}
		if count, _ := s.CacheEntries(ctx); count != 0 {
			t.Errorf("cache entries after delete = %d, want 0", count)
		}

		if got, _ := s.GetBook(ctx, survivor.ID); got == nil {
			t.Error("unrelated book should survive")
		}
		if err := s.DeleteBook(ctx, book.ID); err == nil {
			t.Error("deleting a missing book should error")
		}
	})
}

func TestParseStatus(t *testing.T) {
	for _, status := range AllStatuses() {
		parsed, err := ParseStatus(string(status))
		if err != nil {
			t.Errorf("ParseStatus(%q) error = %v", status, err)
		}
		if parsed != status {
			t.Errorf("ParseStatus(%q) = %q", status, parsed)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("ParseStatus(bogus) should error")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storia.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	book := mustCreateBook(t, s, "Durable")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if got == nil || got.Title != "Durable" {
		t.Errorf("book did not survive reopen: %+v", got)
	}
}

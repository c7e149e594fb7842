package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asp2131/storia/internal/descriptor"
)

const soundscapeColumns = "id, scene_id, book_id, fingerprint, prompt, url, object_key, duration_secs, source, format, created_at"

// InsertScene writes one detected scene.
func (s *SQLiteStore) InsertScene(ctx context.Context, scene *Scene) error {
	if scene == nil {
		return errors.New("scene is nil")
	}
	if scene.ID == "" {
		scene.ID = uuid.New().String()
	}
	if scene.CreatedAt.IsZero() {
		scene.CreatedAt = time.Now().UTC()
	}

	descriptors, err := json.Marshal(scene.Descriptors)
	if err != nil {
		return fmt.Errorf("marshal descriptors: %w", err)
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO scenes (id, book_id, scene_index, start_page, end_page, descriptors_json, soundscape_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scene.ID,
		scene.BookID,
		scene.Index,
		scene.StartPage,
		scene.EndPage,
		string(descriptors),
		scene.SoundscapeID,
		formatTime(scene.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}
	return nil
}

// GetScene fetches a scene by ID, returning nil when it does not exist.
func (s *SQLiteStore) GetScene(ctx context.Context, id string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, book_id, scene_index, start_page, end_page, descriptors_json, soundscape_id, created_at
         FROM scenes WHERE id = ?`, id)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ListScenes returns a book's scenes in reading order.
func (s *SQLiteStore) ListScenes(ctx context.Context, bookID string) ([]*Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, scene_index, start_page, end_page, descriptors_json, soundscape_id, created_at
         FROM scenes WHERE book_id = ? ORDER BY scene_index`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// AttachScenePages sets the scene back-reference on every page in the
// inclusive [startPage, endPage] range.
func (s *SQLiteStore) AttachScenePages(ctx context.Context, bookID, sceneID string, startPage, endPage int) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE pages SET scene_id = ? WHERE book_id = ? AND num BETWEEN ? AND ?`,
		sceneID, bookID, startPage, endPage)
	if err != nil {
		return fmt.Errorf("attach scene pages: %w", err)
	}
	return nil
}

// AttachSoundscape points a scene at its soundscape record.
func (s *SQLiteStore) AttachSoundscape(ctx context.Context, sceneID, soundscapeID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE scenes SET soundscape_id = ? WHERE id = ?`, soundscapeID, sceneID)
	if err != nil {
		return fmt.Errorf("attach soundscape: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scene %s not found", sceneID)
	}
	return nil
}

// InsertSoundscape writes a soundscape record.
func (s *SQLiteStore) InsertSoundscape(ctx context.Context, soundscape *Soundscape) error {
	if soundscape == nil {
		return errors.New("soundscape is nil")
	}
	if soundscape.ID == "" {
		soundscape.ID = uuid.New().String()
	}
	if soundscape.CreatedAt.IsZero() {
		soundscape.CreatedAt = time.Now().UTC()
	}
	if soundscape.Format == "" {
		soundscape.Format = "mp3"
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO soundscapes (`+soundscapeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		soundscape.ID,
		soundscape.SceneID,
		soundscape.BookID,
		soundscape.Fingerprint,
		soundscape.Prompt,
		soundscape.URL,
		soundscape.ObjectKey,
		soundscape.DurationSecs,
		soundscape.Source,
		soundscape.Format,
		formatTime(soundscape.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert soundscape: %w", err)
	}
	return nil
}

// GetSoundscape fetches a soundscape by ID, returning nil when it does not
// exist.
func (s *SQLiteStore) GetSoundscape(ctx context.Context, id string) (*Soundscape, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+soundscapeColumns+` FROM soundscapes WHERE id = ?`, id)
	soundscape, err := scanSoundscape(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get soundscape: %w", err)
	}
	return soundscape, nil
}

// CacheInsert claims the canonical entry for a fingerprint. The first writer
// wins; later inserts report false and change nothing.
func (s *SQLiteStore) CacheInsert(ctx context.Context, fingerprint, soundscapeID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO cache_index (fingerprint, soundscape_id, created_at) VALUES (?, ?, ?)`,
		fingerprint,
		soundscapeID,
		formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("cache insert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CacheLookup returns the canonical soundscape for a fingerprint, or nil on
// a miss. When excludeBookID is set, an entry produced by that book does not
// count.
func (s *SQLiteStore) CacheLookup(ctx context.Context, fingerprint, excludeBookID string) (*Soundscape, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.scene_id, s.book_id, s.fingerprint, s.prompt, s.url, s.object_key, s.duration_secs, s.source, s.format, s.created_at
         FROM cache_index c JOIN soundscapes s ON s.id = c.soundscape_id
         WHERE c.fingerprint = ?`, fingerprint)
	soundscape, err := scanSoundscape(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if excludeBookID != "" && soundscape.BookID == excludeBookID {
		return nil, nil
	}
	return soundscape, nil
}

// CacheEntries counts canonical cache entries.
func (s *SQLiteStore) CacheEntries(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cache_index`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

func scanScene(scanner interface{ Scan(dest ...any) error }) (*Scene, error) {
	var (
		scene          Scene
		descriptorsRaw string
		createdRaw     string
	)
	if err := scanner.Scan(
		&scene.ID,
		&scene.BookID,
		&scene.Index,
		&scene.StartPage,
		&scene.EndPage,
		&descriptorsRaw,
		&scene.SoundscapeID,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	var set descriptor.Set
	if err := json.Unmarshal([]byte(descriptorsRaw), &set); err != nil {
		return nil, fmt.Errorf("unmarshal descriptors: %w", err)
	}
	scene.Descriptors = set
	scene.CreatedAt = parseTime(createdRaw)
	return &scene, nil
}

func scanSoundscape(scanner interface{ Scan(dest ...any) error }) (*Soundscape, error) {
	var (
		soundscape Soundscape
		createdRaw string
	)
	if err := scanner.Scan(
		&soundscape.ID,
		&soundscape.SceneID,
		&soundscape.BookID,
		&soundscape.Fingerprint,
		&soundscape.Prompt,
		&soundscape.URL,
		&soundscape.ObjectKey,
		&soundscape.DurationSecs,
		&soundscape.Source,
		&soundscape.Format,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	soundscape.CreatedAt = parseTime(createdRaw)
	return &soundscape, nil
}

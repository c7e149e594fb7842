package store

import (
	"fmt"
	"time"

	"github.com/asp2131/storia/internal/descriptor"
)

// Status tracks a book through the processing pipeline.
type Status string

const (
	// StatusPending is a freshly created book with no pages yet.
	StatusPending Status = "pending"
	// StatusExtracting means page extraction is writing pages.
	StatusExtracting Status = "extracting"
	// StatusExtracted means pages are persisted and the book awaits admission.
	StatusExtracted Status = "extracted"
	// StatusAnalyzing means page classification is in flight.
	StatusAnalyzing Status = "analyzing"
	// StatusMapping means scenes exist and soundscapes are being attached.
	StatusMapping Status = "mapping"
	// StatusReadyForReview is the terminal success state.
	StatusReadyForReview Status = "ready_for_review"
	// StatusFailed is the terminal failure state.
	StatusFailed Status = "failed"
)

// AllStatuses lists every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusExtracting,
		StatusExtracted,
		StatusAnalyzing,
		StatusMapping,
		StatusReadyForReview,
		StatusFailed,
	}
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, status := range AllStatuses() {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether the pipeline is done with the book.
func (s Status) Terminal() bool {
	return s == StatusReadyForReview || s == StatusFailed
}

// Processing reports whether the pipeline currently owns the book.
func (s Status) Processing() bool {
	return s == StatusAnalyzing || s == StatusMapping
}

// Book is a unit of ingested work.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	Status     Status    `json:"status"`
	PageCount  int       `json:"page_count"`
	SceneCount int       `json:"scene_count"`
	Cost       float64   `json:"cost"`
	Warning    string    `json:"warning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is an ordered fixed-size slice of a book's text. SceneID is the
// back-reference set when scene boundaries are finalized; empty until then.
type Page struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	Num       int    `json:"num"` // 1-based position
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
	SceneID   string `json:"scene_id,omitempty"`
}

// Scene is a maximal run of consecutive pages sharing an ambient feel.
type Scene struct {
	ID           string         `json:"id"`
	BookID       string         `json:"book_id"`
	Index        int            `json:"index"` // 0-based order within the book
	StartPage    int            `json:"start_page"`
	EndPage      int            `json:"end_page"` // inclusive
	Descriptors  descriptor.Set `json:"descriptors"`
	SoundscapeID string         `json:"soundscape_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Soundscape source values.
const (
	SourceSynthesized = "synthesized"
	SourceCache       = "cache"
	SourceOverride    = "override"
)

// Soundscape is the audio attached to one scene. Cache hits get their own
// record with copied playback fields; ObjectKey still points at the original
// audio object, so copies play without duplicating bytes.
type Soundscape struct {
	ID           string    `json:"id"`
	SceneID      string    `json:"scene_id"`
	BookID       string    `json:"book_id"`
	Fingerprint  string    `json:"fingerprint"`
	Prompt       string    `json:"prompt"`
	URL          string    `json:"url"`
	ObjectKey    string    `json:"object_key,omitempty"`
	DurationSecs int       `json:"duration_secs"`
	Source       string    `json:"source"` // "synthesized", "cache", "override"
	Format       string    `json:"format"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProcError records a degraded step without failing the book.
type ProcError struct {
	ID        int64     `json:"id"`
	BookID    string    `json:"book_id"`
	Stage     string    `json:"stage"` // "classify", "synthesis", "pipeline"
	PageNum   int       `json:"page_num,omitempty"`
	SceneID   string    `json:"scene_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger entry kinds.
const (
	LedgerClassification = "classification"
	LedgerSynthesis      = "synthesis"
)

// LedgerEntry is one billable event. Units are attempted calls for
// classification and requested seconds for synthesis.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	BookID    string    `json:"book_id"`
	Kind      string    `json:"kind"`
	Units     float64   `json:"units"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

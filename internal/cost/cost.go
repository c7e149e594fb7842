// Package cost accumulates per-book spend for classification and synthesis
// calls. Totals move by increments only; a book's cost is never recomputed
// from the ledger.
package cost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asp2131/storia/internal/store"
)

// Pricing holds the unit prices from config.
type Pricing struct {
	// ClassificationCall is charged per attempted call, including retries
	// and calls that fail.
	ClassificationCall float64
	// SynthesisPerSecond is charged per requested (clamped) second, only
	// when the service accepts the job.
	SynthesisPerSecond float64
}

// Recorder appends ledger entries and bumps book totals through the store.
type Recorder struct {
	store   store.Store
	pricing Pricing
	logger  *slog.Logger
}

// NewRecorder creates a cost recorder.
func NewRecorder(st store.Store, pricing Pricing, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, pricing: pricing, logger: logger.With("component", "cost")}
}

// RecordClassification bills attempted classification calls. Every attempt
// counts, whether or not it produced a usable result.
func (r *Recorder) RecordClassification(ctx context.Context, bookID string, attempts int) error {
	if attempts <= 0 {
		return nil
	}
	entry := &store.LedgerEntry{
		BookID: bookID,
		Kind:   store.LedgerClassification,
		Units:  float64(attempts),
		Cost:   float64(attempts) * r.pricing.ClassificationCall,
	}
	if err := r.store.AddCost(ctx, entry); err != nil {
		return fmt.Errorf("record classification cost: %w", err)
	}
	r.logger.Debug("billed classification",
		"book_id", bookID,
		"attempts", attempts,
		"cost", entry.Cost)
	return nil
}

// RecordSynthesis bills a synthesized soundscape by its requested duration.
// Cache hits and failed submissions never reach this.
func (r *Recorder) RecordSynthesis(ctx context.Context, bookID string, durationSecs int) error {
	if durationSecs <= 0 {
		return nil
	}
	entry := &store.LedgerEntry{
		BookID: bookID,
		Kind:   store.LedgerSynthesis,
		Units:  float64(durationSecs),
		Cost:   float64(durationSecs) * r.pricing.SynthesisPerSecond,
	}
	if err := r.store.AddCost(ctx, entry); err != nil {
		return fmt.Errorf("record synthesis cost: %w", err)
	}
	r.logger.Debug("billed synthesis",
		"book_id", bookID,
		"duration_secs", durationSecs,
		"cost", entry.Cost)
	return nil
}

// Summary is the per-book cost report.
type Summary struct {
	BookID              string  `json:"book_id"`
	Total               float64 `json:"total"`
	ClassificationCalls float64 `json:"classification_calls"`
	SynthesisSeconds    float64 `json:"synthesis_seconds"`
	Entries             int     `json:"entries"`
}

// Summarize reads the book total and breaks the ledger down by kind.
func (r *Recorder) Summarize(ctx context.Context, bookID string) (Summary, error) {
	book, err := r.store.GetBook(ctx, bookID)
	if err != nil {
		return Summary{}, err
	}
	if book == nil {
		return Summary{}, fmt.Errorf("book %s not found", bookID)
	}

	entries, err := r.store.ListLedger(ctx, bookID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{BookID: bookID, Total: book.Cost, Entries: len(entries)}
	for _, entry := range entries {
		switch entry.Kind {
		case store.LedgerClassification:
			summary.ClassificationCalls += entry.Units
		case store.LedgerSynthesis:
			summary.SynthesisSeconds += entry.Units
		}
	}
	return summary, nil
}

// Package classify turns a page of narrative text into a fixed-schema
// descriptor set by calling an external text-classification service. It owns
// prompt construction, response parsing (the service is not guaranteed to
// return pure JSON), schema validation, and the per-call retry envelope.
package classify

import (
	"context"
	"time"

	"github.com/asp2131/storia/internal/descriptor"
)

// Client is implemented by classification providers. Classify makes exactly
// one service call; retry semantics live in the Retrying wrapper so every
// provider shares one backoff policy.
type Client interface {
	// Classify sends one page of text and returns its descriptor set.
	// Failures are reported as *Error with the appropriate kind.
	Classify(ctx context.Context, req Request) (*Result, error)

	// Name returns the provider identifier (e.g. "openai", "gateway").
	Name() string

	// RequestsPerSecond returns the provider's configured rate limit for
	// worker-pool token buckets. Zero means unlimited.
	RequestsPerSecond() float64
}

// Request identifies one page classification call.
type Request struct {
	Text      string // full page text; providers truncate via the prompt builder
	BookID    string
	PageNum   int    // 1-based sequence number, for logging and attribution
	RequestID string // correlation id threaded through logs and the cost ledger
}

// Result carries the parsed descriptors plus call metadata for cost
// accounting and diagnostics.
type Result struct {
	Descriptors descriptor.Set
	RawContent  string // raw model output, kept for debugging
	Provider    string
	Model       string
	Attempts    int // total service calls made, including failed ones
	InputChars  int // prompt window actually sent, after truncation
	Elapsed     time.Duration
	RequestID   string
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/asp2131/storia/internal/classify"
	"github.com/asp2131/storia/internal/cost"
)

// ClassifyProcessor executes classification units: one retried provider call
// per page. Every attempted service call bills, failed attempts included, so
// cost is recorded from the result's attempt count before the outcome is
// judged.
type ClassifyProcessor struct {
	registry *classify.Registry
	costs    *cost.Recorder
	logger   *slog.Logger
}

// NewClassifyProcessor builds the processor backing the classification pool.
func NewClassifyProcessor(registry *classify.Registry, costs *cost.Recorder, logger *slog.Logger) *ClassifyProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifyProcessor{
		registry: registry,
		costs:    costs,
		logger:   logger.With("component", "classify_worker"),
	}
}

// Process classifies one page and reports the descriptor set or the typed
// failure kind the job records against the page.
func (p *ClassifyProcessor) Process(ctx context.Context, unit *WorkUnit) WorkResult {
	req := unit.Classify
	if req == nil {
		return WorkResult{UnitID: unit.ID, Err: errors.New("classify unit missing payload")}
	}

	client := p.registry.Client()
	if client == nil {
		return failureFor(unit, errors.New("no classification provider configured"), KindInternal)
	}

	res, err := client.Classify(ctx, classify.Request{
		Text:      req.Text,
		BookID:    req.BookID,
		PageNum:   req.PageNum,
		RequestID: unit.ID,
	})

	attempts := 0
	if res != nil {
		attempts = res.Attempts
	}
	if attempts > 0 && p.costs != nil {
		if cerr := p.costs.RecordClassification(ctx, req.BookID, attempts); cerr != nil {
			p.logger.Warn("recording classification cost failed",
				"book_id", req.BookID, "page", req.PageNum, "error", cerr)
		}
	}

	outcome := &ClassifyOutcome{PageNum: req.PageNum, Attempts: attempts}
	if err != nil {
		outcome.Kind = string(classify.KindOf(err))
		return WorkResult{UnitID: unit.ID, Err: err, Classify: outcome}
	}

	outcome.Set = res.Descriptors
	return WorkResult{UnitID: unit.ID, Success: true, Classify: outcome}
}

var _ Processor = (*ClassifyProcessor)(nil)

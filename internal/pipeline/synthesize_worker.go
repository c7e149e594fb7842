package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/asp2131/storia/internal/cache"
	"github.com/asp2131/storia/internal/cost"
	"github.com/asp2131/storia/internal/storage"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/synthesis"
)

// SynthesizeProcessor resolves one scene's soundscape. It consults the cache
// under the fingerprint lock first; a hit copies the canonical record's
// playback fields into a fresh record without touching the provider. On a
// miss it submits, bills the clamped duration, polls to completion, stores
// the audio, and claims the cache entry for the fingerprint.
type SynthesizeProcessor struct {
	registry *synthesis.Registry
	st       store.Store
	objects  storage.ObjectStore
	cache    *cache.Cache
	costs    *cost.Recorder
	logger   *slog.Logger
}

// NewSynthesizeProcessor builds the processor backing the synthesis pool.
func NewSynthesizeProcessor(registry *synthesis.Registry, st store.Store, objects storage.ObjectStore, ch *cache.Cache, costs *cost.Recorder, logger *slog.Logger) *SynthesizeProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SynthesizeProcessor{
		registry: registry,
		st:       st,
		objects:  objects,
		cache:    ch,
		costs:    costs,
		logger:   logger.With("component", "synthesize_worker"),
	}
}

// Process resolves one scene. The fingerprint lock is held for the whole
// lookup-synthesize-insert window so concurrent scenes with the same
// fingerprint serialize: the first synthesizes, the rest hit its entry.
func (p *SynthesizeProcessor) Process(ctx context.Context, unit *WorkUnit) WorkResult {
	req := unit.Synthesize
	if req == nil {
		return WorkResult{UnitID: unit.ID, Err: errors.New("synthesize unit missing payload")}
	}

	outcome := &SynthesizeOutcome{SceneID: req.SceneID, SceneIndex: req.SceneIndex}

	unlock := p.cache.LockFingerprint(req.Fingerprint)
	defer unlock()

	hit, err := p.cache.Lookup(ctx, req.Fingerprint, req.BookID)
	if err != nil {
		p.logger.Warn("cache lookup failed, synthesizing instead",
			"scene_id", req.SceneID, "fingerprint", req.Fingerprint, "error", err)
	}
	if hit != nil {
		ss := copiedSoundscape(hit, req)
		if err := p.persist(ctx, ss); err != nil {
			return p.failure(unit, outcome, err)
		}
		outcome.Soundscape = ss
		outcome.FromCache = true
		p.logger.Info("soundscape served from cache",
			"book_id", req.BookID, "scene_id", req.SceneID, "fingerprint", req.Fingerprint)
		return WorkResult{UnitID: unit.ID, Success: true, Synthesize: outcome}
	}

	client := p.registry.Client()
	if client == nil {
		return p.failure(unit, outcome, errors.New("no synthesis provider configured"))
	}

	handle, billedSecs, err := synthesis.SubmitWithRetry(ctx, client, synthesis.Request{
		Prompt:       req.Prompt,
		DurationSecs: req.DurationSecs,
		Format:       req.Format,
		BookID:       req.BookID,
		SceneID:      req.SceneID,
		RequestID:    unit.ID,
	}, p.registry.RetryPolicy(), p.logger)
	if err != nil {
		// Nothing was submitted, so nothing bills.
		return p.failure(unit, outcome, err)
	}

	outcome.BilledSecs = billedSecs
	if p.costs != nil {
		if cerr := p.costs.RecordSynthesis(ctx, req.BookID, billedSecs); cerr != nil {
			p.logger.Warn("recording synthesis cost failed",
				"book_id", req.BookID, "scene_id", req.SceneID, "error", cerr)
		}
	}

	res, err := synthesis.PollUntilDone(ctx, client, handle, p.registry.PollPolicy(), p.logger)
	if err != nil {
		outcome.TimedOut = synthesis.IsTimeout(err)
		return p.failure(unit, outcome, err)
	}

	key := storage.AudioKey(req.BookID, req.SceneID, req.Format)
	url, err := p.objects.Put(ctx, key, res.Audio)
	if err != nil {
		return p.failure(unit, outcome, fmt.Errorf("store audio: %w", err))
	}

	ss := &store.Soundscape{
		ID:           uuid.New().String(),
		SceneID:      req.SceneID,
		BookID:       req.BookID,
		Fingerprint:  req.Fingerprint,
		Prompt:       req.Prompt,
		URL:          url,
		ObjectKey:    key,
		DurationSecs: billedSecs,
		Source:       store.SourceSynthesized,
		Format:       req.Format,
	}
	if err := p.persist(ctx, ss); err != nil {
		return p.failure(unit, outcome, err)
	}

	if _, err := p.cache.Insert(ctx, req.Fingerprint, ss.ID); err != nil {
		p.logger.Warn("cache insert failed",
			"fingerprint", req.Fingerprint, "soundscape_id", ss.ID, "error", err)
	}

	outcome.Soundscape = ss
	p.logger.Info("soundscape synthesized",
		"book_id", req.BookID,
		"scene_id", req.SceneID,
		"duration_secs", billedSecs,
		"polls", res.Polls)
	return WorkResult{UnitID: unit.ID, Success: true, Synthesize: outcome}
}

// persist writes the soundscape record and points the scene at it.
func (p *SynthesizeProcessor) persist(ctx context.Context, ss *store.Soundscape) error {
	if err := p.st.InsertSoundscape(ctx, ss); err != nil {
		return fmt.Errorf("insert soundscape: %w", err)
	}
	if err := p.st.AttachSoundscape(ctx, ss.SceneID, ss.ID); err != nil {
		return fmt.Errorf("attach soundscape: %w", err)
	}
	return nil
}

func (p *SynthesizeProcessor) failure(unit *WorkUnit, outcome *SynthesizeOutcome, err error) WorkResult {
	outcome.Kind = KindInternal
	var se *synthesis.Error
	if errors.As(err, &se) {
		outcome.Kind = string(se.Kind)
	}
	p.logger.Warn("scene synthesis failed",
		"book_id", unit.Synthesize.BookID,
		"scene_id", outcome.SceneID,
		"kind", outcome.Kind,
		"timed_out", outcome.TimedOut,
		"error", err)
	return WorkResult{UnitID: unit.ID, Err: err, Synthesize: outcome}
}

// copiedSoundscape builds the requesting scene's own record from a cache hit.
// Playback fields come from the canonical entry; identity fields are new. The
// copy keeps pointing at the original audio object.
func copiedSoundscape(hit *store.Soundscape, req *SynthesizeRequest) *store.Soundscape {
	return &store.Soundscape{
		ID:           uuid.New().String(),
		SceneID:      req.SceneID,
		BookID:       req.BookID,
		Fingerprint:  req.Fingerprint,
		Prompt:       hit.Prompt,
		URL:          hit.URL,
		ObjectKey:    hit.ObjectKey,
		DurationSecs: hit.DurationSecs,
		Source:       store.SourceCache,
		Format:       hit.Format,
	}
}

var _ Processor = (*SynthesizeProcessor)(nil)

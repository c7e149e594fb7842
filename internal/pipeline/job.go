package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asp2131/storia/internal/descriptor"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/synthesis"
)

// Job is one schedulable run through the pipeline. Start returns the first
// batch of work units; OnComplete folds one unit's result into job state and
// may return follow-up units. The job is complete when Done reports true and
// the scheduler has no pending units left for it.
type Job interface {
	ID() string
	Start(ctx context.Context) ([]WorkUnit, error)
	OnComplete(ctx context.Context, result WorkResult) ([]WorkUnit, error)
	Done() bool
	Status(ctx context.Context) (map[string]string, error)
}

// BookConfig carries the per-book processing knobs.
type BookConfig struct {
	// BoundaryThreshold is the similarity below which adjacent pages split
	// into separate scenes. Values at or below zero use the package default.
	BoundaryThreshold float64

	// ClassifyInFlight caps concurrent classification calls for one book.
	ClassifyInFlight int

	// SceneDurationSecs is the requested soundscape length. Providers clamp
	// it to their own ceiling; billing follows the clamped value.
	SceneDurationSecs int

	// AudioFormat is the container format requested from synthesis.
	AudioFormat string

	// Timeout bounds one book's wall-clock processing time. Zero disables
	// the budget.
	Timeout time.Duration
}

func (c BookConfig) withDefaults() BookConfig {
	if c.BoundaryThreshold <= 0 {
		c.BoundaryThreshold = descriptor.DefaultBoundaryThreshold
	}
	if c.ClassifyInFlight <= 0 {
		c.ClassifyInFlight = 5
	}
	if c.SceneDurationSecs <= 0 {
		c.SceneDurationSecs = 20
	}
	if c.AudioFormat == "" {
		c.AudioFormat = "mp3"
	}
	return c
}

// Job phases for the status surface.
const (
	phaseQueued    = "queued"
	phaseAnalyzing = "analyzing"
	phaseMapping   = "mapping"
	phaseDone      = "done"
)

// BookJob drives one book from extracted to its terminal status. The
// analyzing phase classifies every page under the in-flight cap; when the
// last page resolves, boundary detection partitions the book into scenes and
// the mapping phase attaches a soundscape to each. Page and scene failures
// degrade the book instead of failing it; only a timeout, a zero-page book,
// or every scene failing is terminal.
type BookJob struct {
	bookID string
	st     store.Store
	logger *slog.Logger
	cfg    BookConfig

	mu       sync.Mutex
	started  bool
	finished bool
	timedOut bool
	phase    string
	deadline time.Time

	pages      []*store.Page
	pageIdx    map[int]int // page num -> index into pages and sets
	sets       []descriptor.Set
	parked     []int // page indexes awaiting emission, in order
	emitted    int
	classified int
	pageErrors int

	scenes        []*store.Scene
	scenesPlanned int
	sceneUnits    int
	scenesDone    int
	sceneFailures int
	cacheHits     int
}

// NewBookJob builds the job for one book. Processing starts when the
// scheduler admits it and calls Start.
func NewBookJob(bookID string, st store.Store, cfg BookConfig, logger *slog.Logger) *BookJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookJob{
		bookID: bookID,
		st:     st,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "pipeline", "book_id", bookID),
		phase:  phaseQueued,
	}
}

func (j *BookJob) ID() string {
	return j.bookID
}

// Start loads the book's pages, moves it to analyzing, and emits the first
// batch of classification units up to the in-flight cap. A book with no
// pages cannot be processed and errors out here.
func (j *BookJob) Start(ctx context.Context) ([]WorkUnit, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return nil, fmt.Errorf("book %s: job already started", j.bookID)
	}
	j.started = true

	pages, err := j.st.ListPages(ctx, j.bookID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("book %s has no pages to process", j.bookID)
	}

	if err := j.st.UpdateBookStatus(ctx, j.bookID, store.StatusAnalyzing); err != nil {
		return nil, fmt.Errorf("mark analyzing: %w", err)
	}

	j.pages = pages
	j.sets = make([]descriptor.Set, len(pages))
	j.pageIdx = make(map[int]int, len(pages))
	j.parked = make([]int, 0, len(pages))
	for i, page := range pages {
		j.pageIdx[page.Num] = i
		j.parked = append(j.parked, i)
	}
	if j.cfg.Timeout > 0 {
		j.deadline = time.Now().Add(j.cfg.Timeout)
	}
	j.phase = phaseAnalyzing

	units := j.emitClassifyLocked()
	j.logger.Info("book analysis started",
		"pages", len(pages),
		"in_flight_cap", j.cfg.ClassifyInFlight,
		"initial_units", len(units))
	return units, nil
}

// OnComplete folds one unit result into the job and returns any follow-up
// units: the next parked classification, or the full synthesis batch when
// the last page resolves.
func (j *BookJob) OnComplete(ctx context.Context, result WorkResult) ([]WorkUnit, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.finished {
		return nil, nil
	}
	if !j.timedOut && !j.deadline.IsZero() && time.Now().After(j.deadline) {
		j.timedOut = true
	}

	switch {
	case result.Classify != nil:
		return j.onClassifyLocked(ctx, result)
	case result.Synthesize != nil:
		return nil, j.onSynthesizeLocked(ctx, result)
	default:
		j.logger.Error("result carries no outcome", "unit_id", result.UnitID, "error", result.Err)
		return nil, nil
	}
}

func (j *BookJob) onClassifyLocked(ctx context.Context, result WorkResult) ([]WorkUnit, error) {
	out := result.Classify
	idx, ok := j.pageIdx[out.PageNum]
	if !ok {
		j.logger.Warn("classification result for unknown page", "page", out.PageNum)
		return nil, nil
	}
	j.classified++

	if result.Success {
		j.sets[idx] = out.Set
	} else {
		// Degrade, don't fail: the page carries neutral descriptors and the
		// failure lands in the book's error list for review.
		j.sets[idx] = descriptor.Neutral()
		j.pageErrors++
		j.recordErrorLocked(ctx, &store.ProcError{
			BookID:  j.bookID,
			Stage:   "classify",
			PageNum: out.PageNum,
			Kind:    errKind(out.Kind),
			Message: errMessage(result.Err),
		})
		j.logger.Warn("page classification failed, using neutral descriptors",
			"page", out.PageNum, "kind", out.Kind, "attempts", out.Attempts)
	}

	if j.timedOut {
		if j.outstandingLocked() == 0 {
			return nil, j.finalizeLocked(ctx)
		}
		return nil, nil
	}

	if j.classified == len(j.pages) {
		return j.buildScenesLocked(ctx)
	}
	return j.emitClassifyLocked(), nil
}

func (j *BookJob) onSynthesizeLocked(ctx context.Context, result WorkResult) error {
	out := result.Synthesize
	j.scenesDone++

	if result.Success {
		if out.FromCache {
			j.cacheHits++
		}
	} else {
		j.sceneFailures++
		j.recordErrorLocked(ctx, &store.ProcError{
			BookID:  j.bookID,
			Stage:   "synthesis",
			SceneID: out.SceneID,
			Kind:    errKind(out.Kind),
			Message: errMessage(result.Err),
		})
		j.logger.Warn("scene left without soundscape",
			"scene_id", out.SceneID, "scene_index", out.SceneIndex, "kind", out.Kind)
	}

	if j.scenesDone < j.sceneUnits {
		return nil
	}
	return j.finalizeLocked(ctx)
}

// emitClassifyLocked releases parked pages up to the in-flight cap.
func (j *BookJob) emitClassifyLocked() []WorkUnit {
	var units []WorkUnit
	for len(j.parked) > 0 && j.emitted-j.classified < j.cfg.ClassifyInFlight {
		idx := j.parked[0]
		j.parked = j.parked[1:]
		page := j.pages[idx]
		units = append(units, WorkUnit{
			ID:       uuid.New().String(),
			JobID:    j.bookID,
			Kind:     UnitClassify,
			Deadline: j.deadline,
			Classify: &ClassifyRequest{
				BookID:  j.bookID,
				PageNum: page.Num,
				Text:    page.Text,
			},
		})
		j.emitted++
	}
	return units
}

// buildScenesLocked runs boundary detection over the completed page
// sequence, persists each scene, and emits its synthesis unit. A scene that
// cannot be persisted is recorded as failed and gets no unit.
func (j *BookJob) buildScenesLocked(ctx context.Context) ([]WorkUnit, error) {
	j.phase = phaseMapping
	if err := j.st.UpdateBookStatus(ctx, j.bookID, store.StatusMapping); err != nil {
		j.logger.Warn("mark mapping failed", "error", err)
	}

	spans := descriptor.Detect(j.sets, j.cfg.BoundaryThreshold)
	j.scenesPlanned = len(spans)

	var units []WorkUnit
	for i, span := range spans {
		agg := descriptor.Aggregate(j.sets[span.Start : span.End+1])
		scene := &store.Scene{
			BookID:      j.bookID,
			Index:       i,
			StartPage:   j.pages[span.Start].Num,
			EndPage:     j.pages[span.End].Num,
			Descriptors: agg,
		}
		if err := j.st.InsertScene(ctx, scene); err != nil {
			j.sceneFailures++
			j.recordErrorLocked(ctx, &store.ProcError{
				BookID:  j.bookID,
				Stage:   "pipeline",
				Kind:    KindInternal,
				Message: fmt.Sprintf("persist scene %d: %v", i, err),
			})
			continue
		}
		if err := j.st.AttachScenePages(ctx, j.bookID, scene.ID, scene.StartPage, scene.EndPage); err != nil {
			j.logger.Warn("attach scene pages failed", "scene_id", scene.ID, "error", err)
		}
		j.scenes = append(j.scenes, scene)

		units = append(units, WorkUnit{
			ID:       uuid.New().String(),
			JobID:    j.bookID,
			Kind:     UnitSynthesize,
			Deadline: j.deadline,
			Synthesize: &SynthesizeRequest{
				BookID:       j.bookID,
				SceneID:      scene.ID,
				SceneIndex:   i,
				Fingerprint:  descriptor.NewFingerprint(agg).Key(),
				Prompt:       synthesis.BuildPrompt(agg),
				DurationSecs: j.cfg.SceneDurationSecs,
				Format:       j.cfg.AudioFormat,
				Descriptors:  agg,
			},
		})
	}
	j.sceneUnits = len(units)

	j.logger.Info("scene boundaries detected",
		"pages", len(j.pages),
		"scenes", j.scenesPlanned,
		"threshold", j.cfg.BoundaryThreshold)

	if j.sceneUnits == 0 {
		return nil, j.finalizeLocked(ctx)
	}
	return units, nil
}

// outstandingLocked counts units emitted but not yet resolved in the current
// phase.
func (j *BookJob) outstandingLocked() int {
	if j.phase == phaseMapping {
		return j.sceneUnits - j.scenesDone
	}
	return j.emitted - j.classified
}

// finalizeLocked computes the terminal status once the last outstanding unit
// has resolved.
func (j *BookJob) finalizeLocked(ctx context.Context) error {
	j.finished = true
	j.phase = phaseDone

	book, err := j.st.GetBook(ctx, j.bookID)
	if err != nil {
		return fmt.Errorf("load book for finalize: %w", err)
	}
	if book == nil {
		return fmt.Errorf("book %s disappeared during processing", j.bookID)
	}
	book.SceneCount = len(j.scenes)

	switch {
	case j.timedOut:
		j.recordErrorLocked(ctx, &store.ProcError{
			BookID:  j.bookID,
			Stage:   "pipeline",
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%v after %s", ErrBookTimeout, j.cfg.Timeout),
		})
		book.Status = store.StatusFailed
		j.logger.Error("book processing timed out", "budget", j.cfg.Timeout)

	case j.scenesPlanned > 0 && j.sceneFailures >= j.scenesPlanned:
		j.recordErrorLocked(ctx, &store.ProcError{
			BookID:  j.bookID,
			Stage:   "pipeline",
			Kind:    KindAllScenesFailed,
			Message: ErrAllScenesFailed.Error(),
		})
		book.Status = store.StatusFailed
		j.logger.Error("every scene failed synthesis", "scenes", j.scenesPlanned)

	default:
		book.Status = store.StatusReadyForReview
		if j.pageErrors > 0 || j.sceneFailures > 0 {
			book.Warning = fmt.Sprintf("degraded: %d page(s) defaulted, %d scene(s) without audio",
				j.pageErrors, j.sceneFailures)
		}
		j.logger.Info("book ready for review",
			"scenes", len(j.scenes),
			"page_errors", j.pageErrors,
			"scene_failures", j.sceneFailures,
			"cache_hits", j.cacheHits)
	}

	if err := j.st.UpdateBook(ctx, book); err != nil {
		return fmt.Errorf("finalize book: %w", err)
	}
	return nil
}

func (j *BookJob) recordErrorLocked(ctx context.Context, procErr *store.ProcError) {
	if err := j.st.AppendError(ctx, procErr); err != nil {
		j.logger.Warn("recording processing error failed", "stage", procErr.Stage, "error", err)
	}
}

func (j *BookJob) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// Deadline reports the book's wall-clock cutoff, zero when it has no budget
// or has not started.
func (j *BookJob) Deadline() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deadline
}

// MarkTimedOut flips the job into drain mode: no further units are emitted
// and the terminal status becomes failed once outstanding work resolves. It
// reports whether this call newly marked the job.
func (j *BookJob) MarkTimedOut() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished || j.timedOut {
		return false
	}
	j.timedOut = true
	return true
}

func (j *BookJob) Status(ctx context.Context) (map[string]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return map[string]string{
		"book_id":        j.bookID,
		"phase":          j.phase,
		"pages":          fmt.Sprintf("%d/%d", j.classified, len(j.pages)),
		"page_errors":    fmt.Sprintf("%d", j.pageErrors),
		"scenes":         fmt.Sprintf("%d/%d", j.scenesDone, j.sceneUnits),
		"scene_failures": fmt.Sprintf("%d", j.sceneFailures),
		"cache_hits":     fmt.Sprintf("%d", j.cacheHits),
		"timed_out":      fmt.Sprintf("%v", j.timedOut),
	}, nil
}

func errKind(kind string) string {
	if kind == "" {
		return KindInternal
	}
	return kind
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ Job = (*BookJob)(nil)

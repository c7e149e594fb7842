package pipeline

import (
	"time"

	"github.com/asp2131/storia/internal/descriptor"
	"github.com/asp2131/storia/internal/store"
)

// UnitKind routes a work unit to the pool that handles it.
type UnitKind string

const (
	UnitClassify   UnitKind = "classify"
	UnitSynthesize UnitKind = "synthesize"
)

// WorkUnit is one schedulable piece of external work. Exactly one payload
// field matching Kind is set. Deadline is the owning book's wall-clock cutoff;
// a pool drops still-queued units whose deadline has passed instead of
// spending a provider call on them.
type WorkUnit struct {
	ID       string
	JobID    string
	Kind     UnitKind
	Deadline time.Time

	Classify   *ClassifyRequest
	Synthesize *SynthesizeRequest
}

// ClassifyRequest asks for one page's descriptor set.
type ClassifyRequest struct {
	BookID  string
	PageNum int // 1-based
	Text    string
}

// SynthesizeRequest asks for one scene's soundscape: cache consult first,
// synthesis on a miss. The prompt is prebuilt from the scene's aggregated
// descriptors so the stored record and the provider see identical text.
type SynthesizeRequest struct {
	BookID       string
	SceneID      string
	SceneIndex   int
	Fingerprint  string
	Prompt       string
	DurationSecs int
	Format       string
	Descriptors  descriptor.Set
}

// WorkResult reports one unit's outcome back to its job. Err is set when
// Success is false; the matching outcome struct may still carry partial data
// (classification attempts, timeout flags) that the job needs for cost and
// error bookkeeping.
type WorkResult struct {
	UnitID  string
	Success bool
	Err     error

	Classify   *ClassifyOutcome
	Synthesize *SynthesizeOutcome
}

// ClassifyOutcome carries a page's descriptor set, or the failure detail when
// classification gave up.
type ClassifyOutcome struct {
	PageNum  int
	Set      descriptor.Set
	Attempts int    // service calls made, including failed attempts
	Kind     string // failure kind when Success is false
}

// SynthesizeOutcome carries the attached soundscape, or the failure detail
// when the scene ends without one.
type SynthesizeOutcome struct {
	SceneID    string
	SceneIndex int
	Soundscape *store.Soundscape
	FromCache  bool
	BilledSecs int    // clamped seconds billed at submission; 0 for hits and rejected submits
	TimedOut   bool   // polling budget exhausted, distinct from service failure
	Kind       string // failure kind when Success is false
}

// unitResult pairs a finished unit with its job ID for scheduler routing.
type unitResult struct {
	JobID  string
	Unit   *WorkUnit
	Result WorkResult
}

// failureFor builds a failed result for a unit that never reached its
// processor (dropped, unroutable, cancelled), preserving page and scene
// attribution so the owning job can keep its books straight.
func failureFor(unit *WorkUnit, err error, kind string) WorkResult {
	result := WorkResult{UnitID: unit.ID, Err: err}
	switch {
	case unit.Classify != nil:
		result.Classify = &ClassifyOutcome{PageNum: unit.Classify.PageNum, Kind: kind}
	case unit.Synthesize != nil:
		result.Synthesize = &SynthesizeOutcome{
			SceneID:    unit.Synthesize.SceneID,
			SceneIndex: unit.Synthesize.SceneIndex,
			Kind:       kind,
		}
	}
	return result
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/asp2131/storia/internal/store"
)

// expirable is implemented by jobs that carry a wall-clock budget.
type expirable interface {
	Deadline() time.Time
	MarkTimedOut() bool
}

// SchedulerConfig carries the scheduler's dependencies and limits.
type SchedulerConfig struct {
	Store  store.Store
	Logger *slog.Logger

	// MaxBooks bounds how many books process concurrently; further
	// submissions wait in admission order. Defaults to 2.
	MaxBooks int

	// ResultBuffer sizes the shared result channel. Defaults to 256.
	ResultBuffer int

	// Book holds the per-book processing knobs applied to every submission.
	Book BookConfig
}

// Scheduler admits a bounded number of books, routes their work units to the
// registered pools, and folds results back into the owning jobs. One result
// loop drives all jobs, so OnComplete handlers never run concurrently.
type Scheduler struct {
	st     store.Store
	logger *slog.Logger
	cfg    SchedulerConfig

	mu      sync.RWMutex
	pools   map[UnitKind]*Pool
	jobs    map[string]Job // active jobs by ID
	pending map[string]int // outstanding unit count per active job
	waiting []Job          // admission queue, FIFO
	running bool
	runCtx  context.Context

	results chan unitResult
}

// NewScheduler builds a scheduler. Pools are registered separately so tests
// can wire mock processors.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBooks <= 0 {
		cfg.MaxBooks = 2
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 256
	}
	cfg.Book = cfg.Book.withDefaults()
	return &Scheduler{
		st:      cfg.Store,
		logger:  cfg.Logger.With("component", "scheduler"),
		cfg:     cfg,
		pools:   make(map[UnitKind]*Pool),
		jobs:    make(map[string]Job),
		pending: make(map[string]int),
		results: make(chan unitResult, cfg.ResultBuffer),
	}
}

// RegisterPool wires a pool into the scheduler's result channel. Registering
// after Run has started launches the pool immediately.
func (s *Scheduler) RegisterPool(p *Pool) {
	s.mu.Lock()
	p.init(s.results)
	s.pools[p.Kind()] = p
	running, ctx := s.running, s.runCtx
	s.mu.Unlock()

	if running {
		go p.Start(ctx)
	}
	s.logger.Info("pool registered", "pool", p.Name(), "kind", p.Kind())
}

// Run starts the registered pools and drives the result loop until ctx is
// cancelled. It blocks; callers run it in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.runCtx = ctx
	pools := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	for _, p := range pools {
		go p.Start(ctx)
	}

	watchdog := time.NewTicker(time.Second)
	defer watchdog.Stop()

	s.logger.Info("scheduler running", "max_books", s.cfg.MaxBooks)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case r := <-s.results:
			s.handleResult(ctx, r)
		case <-watchdog.C:
			s.expireJobs()
		}
	}
}

// RecoverInterrupted fails every book stranded in a mid-flight status by an
// earlier shutdown. Jobs do not survive a restart, so a book still marked
// extracting, analyzing, or mapping at startup is not actually running
// anywhere; without this sweep it could never be resubmitted. Call once
// before Run.
func (s *Scheduler) RecoverInterrupted(ctx context.Context) (int, error) {
	books, err := s.st.ListBooks(ctx, store.StatusExtracting, store.StatusAnalyzing, store.StatusMapping)
	if err != nil {
		return 0, fmt.Errorf("list interrupted books: %w", err)
	}
	for _, book := range books {
		s.logger.Warn("failing book interrupted by shutdown", "book_id", book.ID, "was", book.Status)
		if err := s.st.UpdateBookStatus(ctx, book.ID, store.StatusFailed); err != nil {
			return 0, fmt.Errorf("fail interrupted book %s: %w", book.ID, err)
		}
		if err := s.st.AppendError(ctx, &store.ProcError{
			BookID:  book.ID,
			Stage:   string(book.Status),
			Kind:    KindInterrupted,
			Message: "processing interrupted by server shutdown",
		}); err != nil {
			return 0, fmt.Errorf("record interruption for %s: %w", book.ID, err)
		}
	}
	return len(books), nil
}

// Submit queues one book for processing. Extracted books are admissible
// directly; terminal books are reset first so reprocessing starts from clean
// scenes while keeping pages and accumulated cost. Books in any other state
// are rejected.
func (s *Scheduler) Submit(ctx context.Context, bookID string) error {
	if s.Active(bookID) {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, bookID)
	}

	book, err := s.st.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if book == nil {
		return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
	}

	switch {
	case book.Status == store.StatusExtracted:
	case book.Status.Terminal():
		if err := s.st.ResetForReprocess(ctx, bookID); err != nil {
			return fmt.Errorf("reset for reprocess: %w", err)
		}
		s.logger.Info("book reset for reprocessing", "book_id", bookID, "was", book.Status)
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotAdmissible, bookID, book.Status)
	}

	job := NewBookJob(bookID, s.st, s.cfg.Book, s.cfg.Logger)
	return s.SubmitJob(ctx, job)
}

// SubmitJob admits a job when a slot is free, otherwise appends it to the
// admission queue. Duplicate IDs are rejected whether active or waiting.
func (s *Scheduler) SubmitJob(ctx context.Context, job Job) error {
	s.mu.Lock()
	if _, active := s.jobs[job.ID()]; active {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, job.ID())
	}
	for _, w := range s.waiting {
		if w.ID() == job.ID() {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyQueued, job.ID())
		}
	}
	if len(s.jobs) >= s.cfg.MaxBooks {
		s.waiting = append(s.waiting, job)
		queued := len(s.waiting)
		s.mu.Unlock()
		s.logger.Info("book waiting for admission", "job_id", job.ID(), "position", queued)
		return nil
	}
	s.jobs[job.ID()] = job
	s.pending[job.ID()] = 0
	s.mu.Unlock()

	return s.startJob(ctx, job)
}

// ActiveJobs returns the number of jobs currently processing.
func (s *Scheduler) ActiveJobs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Active reports whether the job is currently processing or waiting.
func (s *Scheduler) Active(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; ok {
		return true
	}
	for _, w := range s.waiting {
		if w.ID() == jobID {
			return true
		}
	}
	return false
}

// startJob calls the job's Start and enqueues its first units. A Start
// failure releases the slot, marks the book failed, and hands the slot to
// the next waiting job.
func (s *Scheduler) startJob(ctx context.Context, job Job) error {
	units, err := job.Start(ctx)
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID())
		delete(s.pending, job.ID())
		s.mu.Unlock()
		s.failBook(ctx, job.ID(), err)
		s.admitNext(ctx)
		return fmt.Errorf("start job %s: %w", job.ID(), err)
	}
	s.enqueueUnits(ctx, job.ID(), units)
	return nil
}

// enqueueUnits counts the units as pending and routes each to its pool. A
// unit that cannot be routed still produces a failure result so the job's
// join accounting stays balanced.
func (s *Scheduler) enqueueUnits(ctx context.Context, jobID string, units []WorkUnit) {
	if len(units) == 0 {
		return
	}
	s.mu.Lock()
	s.pending[jobID] += len(units)
	s.mu.Unlock()

	for i := range units {
		unit := &units[i]
		unit.JobID = jobID

		s.mu.RLock()
		pool := s.pools[unit.Kind]
		s.mu.RUnlock()

		if pool == nil {
			err := fmt.Errorf("%w: %s", ErrNoPoolForUnit, unit.Kind)
			s.logger.Error("unit not routable", "unit_id", unit.ID, "kind", unit.Kind)
			s.deliver(ctx, unitResult{JobID: jobID, Unit: unit, Result: failureFor(unit, err, KindInternal)})
			continue
		}
		if err := pool.Submit(unit); err != nil {
			s.logger.Warn("pool rejected unit",
				"pool", pool.Name(), "unit_id", unit.ID, "error", err)
			s.deliver(ctx, unitResult{JobID: jobID, Unit: unit, Result: failureFor(unit, err, KindInternal)})
		}
	}
}

// deliver feeds a synthetic result into the shared channel without blocking
// the result loop, which may itself be the caller. The async fallback rides
// the scheduler's run context, not the caller's: a submit request that ends
// before delivery must not drop the result and strand the job's accounting.
func (s *Scheduler) deliver(ctx context.Context, r unitResult) {
	select {
	case s.results <- r:
		return
	default:
	}

	s.mu.RLock()
	if s.runCtx != nil {
		ctx = s.runCtx
	}
	s.mu.RUnlock()

	go func() {
		select {
		case s.results <- r:
		case <-ctx.Done():
		}
	}()
}

// handleResult routes one finished unit to its job, enqueues any follow-up
// units, and finishes the job when it is done with nothing outstanding.
func (s *Scheduler) handleResult(ctx context.Context, r unitResult) {
	s.mu.Lock()
	job, ok := s.jobs[r.JobID]
	if ok {
		s.pending[r.JobID]--
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("result for unknown job", "job_id", r.JobID, "unit_id", r.Result.UnitID)
		return
	}

	units, err := job.OnComplete(ctx, r.Result)
	if err != nil {
		s.logger.Error("job completion handler failed", "job_id", r.JobID, "error", err)
	}
	s.enqueueUnits(ctx, r.JobID, units)

	s.mu.Lock()
	done := job.Done() && s.pending[r.JobID] == 0
	if done {
		delete(s.jobs, r.JobID)
		delete(s.pending, r.JobID)
	}
	s.mu.Unlock()

	if done {
		s.logger.Info("job finished", "job_id", r.JobID)
		s.admitNext(ctx)
	}
}

// admitNext fills free slots from the admission queue in order.
func (s *Scheduler) admitNext(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.waiting) == 0 || len(s.jobs) >= s.cfg.MaxBooks {
			s.mu.Unlock()
			return
		}
		job := s.waiting[0]
		s.waiting = s.waiting[1:]
		s.jobs[job.ID()] = job
		s.pending[job.ID()] = 0
		s.mu.Unlock()

		if err := s.startJob(ctx, job); err != nil {
			s.logger.Warn("admission start failed, trying next", "job_id", job.ID(), "error", err)
		}
	}
}

// expireJobs marks jobs past their deadline. The marked job drains: its
// queued units are dropped by pool dispatchers, in-flight calls finish
// naturally, and the final result triggers a failed finalize.
func (s *Scheduler) expireJobs() {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, job := range jobs {
		exp, ok := job.(expirable)
		if !ok {
			continue
		}
		if deadline := exp.Deadline(); !deadline.IsZero() && now.After(deadline) {
			if exp.MarkTimedOut() {
				s.logger.Warn("job exceeded processing budget", "job_id", job.ID())
			}
		}
	}
}

// failBook records a pipeline-level failure for a book that never got its
// job running.
func (s *Scheduler) failBook(ctx context.Context, bookID string, cause error) {
	if err := s.st.UpdateBookStatus(ctx, bookID, store.StatusFailed); err != nil {
		s.logger.Warn("marking book failed", "book_id", bookID, "error", err)
	}
	if err := s.st.AppendError(ctx, &store.ProcError{
		BookID:  bookID,
		Stage:   "pipeline",
		Kind:    KindInternal,
		Message: cause.Error(),
	}); err != nil {
		s.logger.Warn("recording pipeline error", "book_id", bookID, "error", err)
	}
}

// JobStatus is one active job's row in the scheduler status surface.
type JobStatus struct {
	ID      string            `json:"id"`
	Pending int               `json:"pending_units"`
	Detail  map[string]string `json:"detail,omitempty"`
}

// Status is the scheduler introspection surface served by the API.
type Status struct {
	MaxBooks int          `json:"max_books"`
	Active   []JobStatus  `json:"active"`
	Waiting  []string     `json:"waiting"`
	Pools    []PoolStatus `json:"pools"`
}

// Status reports active jobs, the admission queue, and pool health.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	pendings := make(map[string]int, len(s.pending))
	for id, n := range s.pending {
		pendings[id] = n
	}
	waiting := make([]string, 0, len(s.waiting))
	for _, w := range s.waiting {
		waiting = append(waiting, w.ID())
	}
	pools := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.RUnlock()

	status := Status{MaxBooks: s.cfg.MaxBooks, Waiting: waiting}
	for _, job := range jobs {
		detail, err := job.Status(ctx)
		if err != nil {
			s.logger.Warn("job status failed", "job_id", job.ID(), "error", err)
		}
		status.Active = append(status.Active, JobStatus{
			ID:      job.ID(),
			Pending: pendings[job.ID()],
			Detail:  detail,
		})
	}
	sort.Slice(status.Active, func(i, k int) bool { return status.Active[i].ID < status.Active[k].ID })

	for _, p := range pools {
		status.Pools = append(status.Pools, p.Status())
	}
	sort.Slice(status.Pools, func(i, k int) bool { return status.Pools[i].Name < status.Pools[k].Name })

	return status
}

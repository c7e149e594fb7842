package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Processor executes one work unit against an external service. Process is
// called from multiple worker goroutines and must be safe for concurrent use.
type Processor interface {
	Process(ctx context.Context, unit *WorkUnit) WorkResult
}

// Pool runs one kind of work unit through N worker goroutines behind a shared
// token-bucket rate limiter. A single dispatcher goroutine owns the limiter
// and feeds workers, so the provider's rate is enforced no matter how many
// workers are configured. Expired units (book deadline passed while queued)
// are failed by the dispatcher without spending a provider call.
type Pool struct {
	name      string
	kind      UnitKind
	processor Processor
	limiter   *RateLimiter
	logger    *slog.Logger

	workerCount int
	queue       chan *WorkUnit // jobs submit here
	work        chan *WorkUnit // dispatcher -> workers
	results     chan<- unitResult

	inFlight atomic.Int32
	dropped  atomic.Int64
}

// PoolConfig configures a worker pool.
type PoolConfig struct {
	Name      string
	Kind      UnitKind
	Processor Processor
	Logger    *slog.Logger

	// Workers is the number of concurrent executors (default 4).
	Workers int

	// RPS is the shared token-bucket rate. Zero or less means unlimited.
	RPS float64

	// QueueSize bounds the intake queue (default 256).
	QueueSize int
}

// NewPool creates a pool. The scheduler calls init before Start.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("pool %s: processor is required", cfg.Name)
	}
	if cfg.Kind == "" {
		return nil, fmt.Errorf("pool %s: unit kind is required", cfg.Name)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	name := cfg.Name
	if name == "" {
		name = string(cfg.Kind)
	}

	return &Pool{
		name:        name,
		kind:        cfg.Kind,
		processor:   cfg.Processor,
		limiter:     NewRateLimiter(cfg.RPS),
		logger:      logger.With("pool", name, "workers", workers),
		workerCount: workers,
		queue:       make(chan *WorkUnit, queueSize),
	}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Kind returns the unit kind this pool handles.
func (p *Pool) Kind() UnitKind {
	return p.kind
}

// init wires the shared results channel. Called by the scheduler before Start.
func (p *Pool) init(results chan<- unitResult) {
	p.work = make(chan *WorkUnit, p.workerCount)
	p.results = results
}

// Start runs the dispatcher and worker goroutines. Blocks until ctx is
// cancelled; run it in a goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Debug("pool started")

	go p.dispatcher(ctx)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx)
	}

	<-ctx.Done()
	p.logger.Debug("pool stopping")
}

// Submit adds a work unit to the pool's queue. Returns ErrPoolQueueFull when
// the intake queue is saturated.
func (p *Pool) Submit(unit *WorkUnit) error {
	if unit.Kind != p.kind {
		return fmt.Errorf("pool %s cannot process %s units", p.name, unit.Kind)
	}
	select {
	case p.queue <- unit:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrPoolQueueFull, p.name)
	}
}

// dispatcher owns the rate limiter: pull a unit, drop it if its deadline
// passed while queued, otherwise wait for a token and hand it to a worker.
func (p *Pool) dispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case unit := <-p.queue:
			if !unit.Deadline.IsZero() && time.Now().After(unit.Deadline) {
				p.dropped.Add(1)
				p.logger.Debug("dropping expired unit", "unit_id", unit.ID, "job_id", unit.JobID)
				p.emit(ctx, unit, failureFor(unit, errUnitExpired, KindTimeout))
				continue
			}

			if err := p.limiter.Wait(ctx); err != nil {
				p.emit(ctx, unit, failureFor(unit, fmt.Errorf("rate limit wait cancelled: %w", err), KindInternal))
				continue
			}

			p.inFlight.Add(1)
			select {
			case p.work <- unit:
			case <-ctx.Done():
				p.inFlight.Add(-1)
				return
			}
		}
	}
}

// worker executes units handed over by the dispatcher.
func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case unit := <-p.work:
			result := p.processor.Process(ctx, unit)
			p.inFlight.Add(-1)
			if result.Success {
				p.logger.Debug("unit completed", "unit_id", unit.ID)
			} else {
				p.logger.Warn("unit failed", "unit_id", unit.ID, "error", result.Err)
			}
			p.emit(ctx, unit, result)
		}
	}
}

// emit delivers a result unless the scheduler has shut down.
func (p *Pool) emit(ctx context.Context, unit *WorkUnit, result WorkResult) {
	select {
	case p.results <- unitResult{JobID: unit.JobID, Unit: unit, Result: result}:
	case <-ctx.Done():
	}
}

// PoolStatus reports a pool's current state.
type PoolStatus struct {
	Name        string            `json:"name"`
	Kind        string            `json:"kind"`
	Workers     int               `json:"workers"`
	InFlight    int               `json:"in_flight"`
	QueueDepth  int               `json:"queue_depth"`
	Dropped     int64             `json:"dropped"`
	RateLimiter RateLimiterStatus `json:"rate_limiter"`
}

// Status returns a snapshot of the pool.
func (p *Pool) Status() PoolStatus {
	return PoolStatus{
		Name:        p.name,
		Kind:        string(p.kind),
		Workers:     p.workerCount,
		InFlight:    int(p.inFlight.Load()),
		QueueDepth:  len(p.queue),
		Dropped:     p.dropped.Load(),
		RateLimiter: p.limiter.Status(),
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// procFunc adapts a function to the Processor interface for tests.
type procFunc func(ctx context.Context, unit *WorkUnit) WorkResult

func (f procFunc) Process(ctx context.Context, unit *WorkUnit) WorkResult {
	return f(ctx, unit)
}

// TestPool_ProcessesUnits tests that submitted units reach the processor and
// their results land on the shared channel with job attribution.
func TestPool_ProcessesUnits(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		Name: "classify",
		Kind: UnitClassify,
		Processor: procFunc(func(ctx context.Context, unit *WorkUnit) WorkResult {
			return WorkResult{
				UnitID:   unit.ID,
				Success:  true,
				Classify: &ClassifyOutcome{PageNum: unit.Classify.PageNum},
			}
		}),
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	results := make(chan unitResult, 8)
	pool.init(results)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go pool.Start(ctx)

	for i := 1; i <= 3; i++ {
		unit := &WorkUnit{
			ID:       fmt.Sprintf("unit-%d", i),
			JobID:    "job-1",
			Kind:     UnitClassify,
			Classify: &ClassifyRequest{BookID: "book-1", PageNum: i},
		}
		if err := pool.Submit(unit); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			if !r.Result.Success {
				t.Errorf("result not successful: %v", r.Result.Err)
			}
			if r.JobID != "job-1" {
				t.Errorf("JobID = %q, want job-1", r.JobID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
}

// TestPool_DropsExpiredUnits tests that a queued unit past its deadline is
// dropped with a failure result instead of reaching the processor.
func TestPool_DropsExpiredUnits(t *testing.T) {
	var calls atomic.Int32
	pool, err := NewPool(PoolConfig{
		Name: "classify",
		Kind: UnitClassify,
		Processor: procFunc(func(ctx context.Context, unit *WorkUnit) WorkResult {
			calls.Add(1)
			return WorkResult{UnitID: unit.ID, Success: true}
		}),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	results := make(chan unitResult, 2)
	pool.init(results)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go pool.Start(ctx)

	unit := &WorkUnit{
		ID:       "expired-unit",
		JobID:    "job-1",
		Kind:     UnitClassify,
		Deadline: time.Now().Add(-time.Second),
		Classify: &ClassifyRequest{BookID: "book-1", PageNum: 7},
	}
	if err := pool.Submit(unit); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case r := <-results:
		if r.Result.Success {
			t.Error("expired unit reported success")
		}
		if !errors.Is(r.Result.Err, errUnitExpired) {
			t.Errorf("err = %v, want unit expired", r.Result.Err)
		}
		if r.Result.Classify == nil || r.Result.Classify.PageNum != 7 {
			t.Error("expired result lost page attribution")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result for expired unit")
	}

	if calls.Load() != 0 {
		t.Errorf("processor ran %d times for an expired unit", calls.Load())
	}
	if dropped := pool.Status().Dropped; dropped != 1 {
		t.Errorf("Dropped = %d, want 1", dropped)
	}
}

// TestPool_RejectsWrongKind tests unit kind routing.
func TestPool_RejectsWrongKind(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		Name: "classify",
		Kind: UnitClassify,
		Processor: procFunc(func(ctx context.Context, unit *WorkUnit) WorkResult {
			return WorkResult{UnitID: unit.ID, Success: true}
		}),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	unit := &WorkUnit{ID: "u1", Kind: UnitSynthesize, Synthesize: &SynthesizeRequest{}}
	if err := pool.Submit(unit); err == nil {
		t.Fatal("Submit() accepted a unit of the wrong kind")
	}
}

// TestPool_QueueFull tests backpressure on a saturated intake queue.
func TestPool_QueueFull(t *testing.T) {
	pool, err := NewPool(PoolConfig{
		Name:      "classify",
		Kind:      UnitClassify,
		QueueSize: 1,
		Processor: procFunc(func(ctx context.Context, unit *WorkUnit) WorkResult {
			return WorkResult{UnitID: unit.ID, Success: true}
		}),
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	// The pool is never started, so nothing drains the queue.
	first := &WorkUnit{ID: "u1", Kind: UnitClassify, Classify: &ClassifyRequest{PageNum: 1}}
	if err := pool.Submit(first); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	second := &WorkUnit{ID: "u2", Kind: UnitClassify, Classify: &ClassifyRequest{PageNum: 2}}
	if err := pool.Submit(second); !errors.Is(err, ErrPoolQueueFull) {
		t.Fatalf("second Submit() error = %v, want ErrPoolQueueFull", err)
	}
}

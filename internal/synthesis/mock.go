package synthesis

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockClient is a Client for testing. Jobs resolve after PendingPolls polls
// with the configured outcome; submit failures are scripted the same way as
// the classify mock.
type MockClient struct {
	// Configurable behavior
	Latency                 time.Duration
	FailSubmit              bool      // every submit fails
	SubmitFailKind          ErrorKind // kind for scripted submit failures (default transport)
	TransientSubmitFailures int       // first N submits fail with 503s, then succeed
	PendingPolls            int       // polls that report pending before the outcome
	NeverComplete           bool      // job stays pending forever (exercises the budget)
	Outcome                 JobState  // terminal state after PendingPolls (default succeeded)
	FailReason              string
	Audio                   []byte
	MaxDuration             int // default 30s

	// SubmitFunc, when non-nil, replaces scripted submit behavior.
	SubmitFunc func(ctx context.Context, req Request) (JobHandle, error)

	mu          sync.Mutex
	jobs        map[string]*mockJob
	submitCount atomic.Int64
	pollCount   atomic.Int64
	fetchCount  atomic.Int64
}

type mockJob struct {
	req   Request
	polls int
}

// NewMockClient creates a mock with instant jobs that succeed.
func NewMockClient() *MockClient {
	return &MockClient{
		Audio:       []byte("mock-audio"),
		MaxDuration: 30,
		jobs:        make(map[string]*mockJob),
	}
}

// Name returns the provider identifier.
func (c *MockClient) Name() string {
	return MockName
}

// MaxDurationSecs returns the mock duration ceiling.
func (c *MockClient) MaxDurationSecs() int {
	if c.MaxDuration <= 0 {
		return 30
	}
	return c.MaxDuration
}

// RequestsPerSecond returns a permissive rate limit.
func (c *MockClient) RequestsPerSecond() float64 {
	return 100
}

// Submit records the request and returns a handle, or a scripted failure.
func (c *MockClient) Submit(ctx context.Context, req Request) (JobHandle, error) {
	if c.SubmitFunc != nil {
		c.submitCount.Add(1)
		return c.SubmitFunc(ctx, req)
	}

	count := c.submitCount.Add(1)
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return JobHandle{}, ctx.Err()
		}
	}

	if c.FailSubmit || int(count) <= c.TransientSubmitFailures {
		kind := c.SubmitFailKind
		if kind == "" {
			kind = KindTransport
		}
		status := 0
		if kind == KindTransport {
			status = http.StatusServiceUnavailable
		}
		return JobHandle{}, &Error{Kind: kind, Message: "mock submit configured to fail", StatusCode: status}
	}

	id := fmt.Sprintf("mock-job-%d", count)
	c.mu.Lock()
	if c.jobs == nil {
		c.jobs = make(map[string]*mockJob)
	}
	c.jobs[id] = &mockJob{req: req}
	c.mu.Unlock()

	return JobHandle{ID: id, Provider: MockName}, nil
}

// Poll advances the scripted job state machine.
func (c *MockClient) Poll(ctx context.Context, handle JobHandle) (PollStatus, error) {
	if err := ctx.Err(); err != nil {
		return PollStatus{}, err
	}
	c.pollCount.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[handle.ID]
	if !ok {
		return PollStatus{}, &Error{Kind: KindRequest, Message: "unknown job " + handle.ID, StatusCode: http.StatusNotFound}
	}

	job.polls++
	if c.NeverComplete || job.polls <= c.PendingPolls {
		return PollStatus{State: StatePending}, nil
	}

	outcome := c.Outcome
	if outcome == "" {
		outcome = StateSucceeded
	}
	switch outcome {
	case StateSucceeded:
		return PollStatus{State: StateSucceeded, Location: "/audio/" + handle.ID}, nil
	case StateFailed:
		reason := c.FailReason
		if reason == "" {
			reason = "mock job configured to fail"
		}
		return PollStatus{State: StateFailed, Reason: reason}, nil
	case StateCanceled:
		return PollStatus{State: StateCanceled, Reason: "mock job canceled"}, nil
	default:
		return PollStatus{State: StatePending}, nil
	}
}

// Fetch returns the configured audio bytes.
func (c *MockClient) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.fetchCount.Add(1)
	return c.Audio, nil
}

// SubmitCount returns the number of submit calls made.
func (c *MockClient) SubmitCount() int64 {
	return c.submitCount.Load()
}

// PollCount returns the number of poll calls made.
func (c *MockClient) PollCount() int64 {
	return c.pollCount.Load()
}

// SubmittedDurations returns the clamped durations of successful submits in
// order.
func (c *MockClient) SubmittedDurations() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	durations := make([]int, 0, len(c.jobs))
	for i := int64(1); i <= c.submitCount.Load(); i++ {
		if job, ok := c.jobs[fmt.Sprintf("mock-job-%d", i)]; ok {
			durations = append(durations, job.req.DurationSecs)
		}
	}
	return durations
}

// Reset clears counters and recorded jobs.
func (c *MockClient) Reset() {
	c.mu.Lock()
	c.jobs = make(map[string]*mockJob)
	c.mu.Unlock()
	c.submitCount.Store(0)
	c.pollCount.Store(0)
	c.fetchCount.Store(0)
}

var _ Client = (*MockClient)(nil)

package classify

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/asp2131/storia/internal/descriptor"
)

const MockName = "mock"

// MockClient is a Client for testing. Behavior is scripted through fields;
// ClassifyFunc overrides everything when set.
type MockClient struct {
	// Configurable behavior
	Latency           time.Duration
	ShouldFail        bool           // every call fails
	FailKind          ErrorKind      // kind used for scripted failures (default transport)
	FailStatus        int            // status code used for scripted failures (default 503)
	TransientFailures int            // first N calls fail with transport errors, then succeed
	Response          descriptor.Set // returned on success (defaults to Neutral)
	RawContent        string         // optional raw text run through ParseDescriptors instead

	// ClassifyFunc, when non-nil, replaces the scripted behavior entirely.
	ClassifyFunc func(ctx context.Context, req Request) (*Result, error)

	RPS float64

	requestCount atomic.Int64
}

// NewMockClient creates a mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:  time.Millisecond,
		Response: descriptor.Neutral(),
		RPS:      100,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockName
}

// RequestsPerSecond returns the configured rate limit.
func (c *MockClient) RequestsPerSecond() float64 {
	if c.RPS <= 0 {
		return 100
	}
	return c.RPS
}

// Classify runs the scripted behavior.
func (c *MockClient) Classify(ctx context.Context, req Request) (*Result, error) {
	if c.ClassifyFunc != nil {
		c.requestCount.Add(1)
		return c.ClassifyFunc(ctx, req)
	}

	start := time.Now()
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.ShouldFail || int(count) <= c.TransientFailures {
		return nil, c.scriptedError()
	}

	set := c.Response
	if set.IsZero() && c.RawContent == "" {
		set = descriptor.Neutral()
	}
	if c.RawContent != "" {
		parsed, err := ParseDescriptors(c.RawContent)
		if err != nil {
			return nil, err
		}
		set = parsed
	}

	return &Result{
		Descriptors: set,
		RawContent:  c.RawContent,
		Provider:    MockName,
		Model:       "mock-model",
		Attempts:    1,
		Elapsed:     time.Since(start),
		RequestID:   fmt.Sprintf("mock-%d", count),
	}, nil
}

func (c *MockClient) scriptedError() error {
	kind := c.FailKind
	if kind == "" {
		kind = KindTransport
	}
	status := c.FailStatus
	if status == 0 && kind == KindTransport {
		status = http.StatusServiceUnavailable
	}
	return &Error{
		Kind:       kind,
		Message:    "mock client configured to fail",
		StatusCode: status,
	}
}

// RequestCount returns the number of calls made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset clears the call counter.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
}

var _ Client = (*MockClient)(nil)

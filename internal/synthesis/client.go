// Package synthesis drives the external ambient-audio generation service.
// The service is asynchronous: a submit call returns a job handle, the job is
// polled until it resolves, and the finished asset is fetched from the
// location the service reports. Polling backoff and the wall-clock budget
// belong to the poller here, independent of classification retry settings.
package synthesis

import (
	"context"
	"time"
)

// JobState is the service-side lifecycle of a synthesis job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCanceled  JobState = "canceled"
)

// Request describes one synthesis job. DurationSecs is clamped to the
// provider maximum before submission.
type Request struct {
	Prompt       string
	DurationSecs int
	Format       string            // e.g. "mp3"
	Params       map[string]string // provider-specific generation knobs
	BookID       string
	SceneID      string
	RequestID    string
}

// JobHandle identifies a submitted job for polling.
type JobHandle struct {
	ID       string
	Provider string
}

// PollStatus is one observation of a job's state. Location is set once the
// job succeeds; Reason carries the service's failure explanation.
type PollStatus struct {
	State    JobState
	Location string
	Reason   string
}

// Client is implemented by synthesis providers. Submit and Poll make exactly
// one service call each; resubmission and the polling loop are the caller's.
type Client interface {
	// Submit starts a synthesis job. The request's duration must already be
	// within the provider maximum; Clamp handles that.
	Submit(ctx context.Context, req Request) (JobHandle, error)

	// Poll reports the job's current state.
	Poll(ctx context.Context, handle JobHandle) (PollStatus, error)

	// Fetch downloads the finished audio from the location Poll reported.
	Fetch(ctx context.Context, location string) ([]byte, error)

	// Name returns the provider identifier.
	Name() string

	// MaxDurationSecs returns the service-imposed duration ceiling.
	MaxDurationSecs() int

	// RequestsPerSecond returns the provider's rate limit for worker-pool
	// token buckets. Zero means unlimited.
	RequestsPerSecond() float64
}

// Clamp bounds the requested duration to [1, max]. The clamped value is what
// gets submitted and what cost accounting bills.
func Clamp(durationSecs, max int) int {
	if max > 0 && durationSecs > max {
		return max
	}
	if durationSecs < 1 {
		return 1
	}
	return durationSecs
}

// Result is the poller's terminal success outcome.
type Result struct {
	Location     string
	Audio        []byte
	DurationSecs int // clamped duration actually submitted
	Polls        int
	Elapsed      time.Duration
}

package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds the retry envelope around a submit call. Poll calls are
// not individually retried; a transport error during polling just means the
// next poll happens after the current backoff delay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy mirrors the classification envelope: 3 retries, 1s base
// doubling to a 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// PollPolicy shapes the polling loop: initial delay doubling to a cap, all of
// it bounded by a wall-clock budget.
type PollPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Budget       time.Duration
}

// DefaultPollPolicy waits 500ms before the first poll, backs off to 8s
// between polls, and gives up after 90s of wall-clock time.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Budget:       90 * time.Second,
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	d := DefaultPollPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Budget <= 0 {
		p.Budget = d.Budget
	}
	return p
}

// SubmitWithRetry submits a job, retrying transient failures with doubling,
// capped backoff. Permanent rejections surface immediately. The request's
// duration is clamped to the client maximum here so callers always bill the
// duration that was really submitted.
func SubmitWithRetry(ctx context.Context, client Client, req Request, policy RetryPolicy, logger *slog.Logger) (JobHandle, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy = policy.withDefaults()
	req.DurationSecs = Clamp(req.DurationSecs, client.MaxDurationSecs())

	var handle JobHandle
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			h, err := client.Submit(ctx, req)
			if err != nil {
				return err
			}
			handle = h
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(policy.MaxRetries)+1),
		retry.Delay(policy.BaseDelay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying synthesis submit",
				"scene_id", req.SceneID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return JobHandle{}, req.DurationSecs, err
	}
	return handle, req.DurationSecs, nil
}

// PollUntilDone drives the Pending/Succeeded/Failed/Canceled state machine
// for one submitted job. Delays start at InitialDelay and double to MaxDelay;
// the whole loop is bounded by Budget, and exhausting it returns a timeout
// error distinct from a service-reported failure. A transport error on an
// individual poll does not abort the loop, it just costs one backoff step.
// On success the finished audio is fetched and returned.
func PollUntilDone(ctx context.Context, client Client, handle JobHandle, policy PollPolicy, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy = policy.withDefaults()

	start := time.Now()
	deadline := start.Add(policy.Budget)
	delay := policy.InitialDelay
	polls := 0

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &Error{Kind: KindTimeout, Message: timeoutMessage(handle, polls, policy.Budget)}
		}
		// The last wait is shortened so the job gets one final poll right at
		// the deadline before the budget verdict.
		if err := sleep(ctx, min(delay, remaining)); err != nil {
			return nil, err
		}

		polls++
		status, err := client.Poll(ctx, handle)
		if err != nil {
			if !IsTransient(err) {
				return nil, err
			}
			logger.Debug("poll attempt failed", "job_id", handle.ID, "polls", polls, "error", err)
		} else {
			switch status.State {
			case StateSucceeded:
				audio, err := client.Fetch(ctx, status.Location)
				if err != nil {
					return nil, err
				}
				return &Result{
					Location: status.Location,
					Audio:    audio,
					Polls:    polls,
					Elapsed:  time.Since(start),
				}, nil
			case StateFailed:
				return nil, &Error{Kind: KindFailed, Message: status.Reason}
			case StateCanceled:
				return nil, &Error{Kind: KindCanceled, Message: status.Reason}
			case StatePending:
				// Keep waiting.
			}
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timeoutMessage(handle JobHandle, polls int, budget time.Duration) string {
	return fmt.Sprintf("job %s still pending after %s (%d polls)", handle.ID, budget, polls)
}

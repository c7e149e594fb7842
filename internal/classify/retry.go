package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds the retry envelope around one classification call.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt; 3 means 4 attempts total
	BaseDelay  time.Duration // first backoff delay, doubled each attempt
	MaxDelay   time.Duration // backoff cap
}

// DefaultRetryPolicy matches the service contract: 3 retries, 1s base delay
// doubling to a 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
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

// Retrying wraps any Client with exponential backoff on transient failures.
// Permanent failures (4xx, unparseable output, missing keys) surface
// immediately. The returned Result always carries the true attempt count,
// including on failure, because every attempted call bills.
type Retrying struct {
	inner  Client
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrying wraps inner with the given policy.
func NewRetrying(inner Client, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		inner:  inner,
		policy: policy.withDefaults(),
		logger: logger.With("component", "classify", "provider", inner.Name()),
	}
}

// Name returns the wrapped provider's identifier.
func (r *Retrying) Name() string {
	return r.inner.Name()
}

// RequestsPerSecond returns the wrapped provider's rate limit.
func (r *Retrying) RequestsPerSecond() float64 {
	return r.inner.RequestsPerSecond()
}

// Classify calls the wrapped provider, retrying transient failures with
// doubling, capped backoff. A server-provided Retry-After hint stretches the
// computed delay when it is longer.
func (r *Retrying) Classify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	attempts := 0

	var result *Result
	err := retry.Do(
		func() error {
			attempts++
			res, err := r.inner.Classify(ctx, req)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.policy.MaxRetries)+1),
		retry.Delay(r.policy.BaseDelay),
		retry.MaxDelay(r.policy.MaxDelay),
		retry.DelayType(r.delayType),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug("retrying classification",
				"book_id", req.BookID,
				"page", req.PageNum,
				"attempt", n+1,
				"error", err)
		}),
	)

	if err != nil {
		return &Result{
			Provider:  r.inner.Name(),
			Attempts:  attempts,
			Elapsed:   time.Since(start),
			RequestID: req.RequestID,
		}, err
	}

	result.Attempts = attempts
	result.Elapsed = time.Since(start)
	return result, nil
}

// delayType applies standard exponential backoff but defers to a longer
// server Retry-After hint when one is present.
func (r *Retrying) delayType(n uint, err error, config *retry.Config) time.Duration {
	delay := retry.BackOffDelay(n, err, config)
	var ce *Error
	if errors.As(err, &ce) && ce.RetryAfter > delay {
		return ce.RetryAfter
	}
	return delay
}

var _ Client = (*Retrying)(nil)

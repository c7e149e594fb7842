package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestRetryingSucceedsAfterTransientFailures(t *testing.T) {
	// 503 three times, success on the fourth attempt, within a 3-retry budget.
	mock := NewMockClient()
	mock.TransientFailures = 3

	client := NewRetrying(mock, fastPolicy(3), nil)
	res, err := client.Classify(context.Background(), Request{Text: "some page text", PageNum: 1})
	if err != nil {
		t.Fatalf("Classify() error = %v, want success on attempt 4", err)
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}
	if mock.RequestCount() != 4 {
		t.Errorf("provider calls = %d, want 4", mock.RequestCount())
	}
}

func TestRetryingExhaustsBudget(t *testing.T) {
	mock := NewMockClient()
	mock.ShouldFail = true

	client := NewRetrying(mock, fastPolicy(2), nil)
	res, err := client.Classify(context.Background(), Request{Text: "text"})
	if err == nil {
		t.Fatal("Classify() expected error after exhausting retries")
	}
	if !IsTransient(err) {
		t.Errorf("final error should keep its transport kind, got %v", err)
	}
	if res == nil || res.Attempts != 3 {
		t.Fatalf("failure result attempts = %+v, want 3 (1 + 2 retries)", res)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("provider calls = %d, want 3", mock.RequestCount())
	}
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	mock := NewMockClient()
	mock.ShouldFail = true
	mock.FailKind = KindRequest
	mock.FailStatus = 400

	client := NewRetrying(mock, fastPolicy(3), nil)
	res, err := client.Classify(context.Background(), Request{Text: "text"})
	if err == nil {
		t.Fatal("Classify() expected permanent error")
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindRequest {
		t.Fatalf("error = %v, want request kind", err)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (no retries for 4xx)", res.Attempts)
	}
}

func TestRetryingDoesNotRetryParseFailures(t *testing.T) {
	mock := NewMockClient()
	mock.ShouldFail = true
	mock.FailKind = KindMissingKeys

	client := NewRetrying(mock, fastPolicy(3), nil)
	_, err := client.Classify(context.Background(), Request{Text: "text"})
	if err == nil {
		t.Fatal("Classify() expected error")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.RequestCount())
	}
}

func TestRetryingHonorsContextCancellation(t *testing.T) {
	mock := NewMockClient()
	mock.ShouldFail = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewRetrying(mock, fastPolicy(5), nil)
	_, err := client.Classify(ctx, Request{Text: "text"})
	if err == nil {
		t.Fatal("Classify() expected error with cancelled context")
	}
	if mock.RequestCount() > 1 {
		t.Errorf("provider calls = %d, want at most 1 after cancellation", mock.RequestCount())
	}
}

func TestBuildPromptTruncates(t *testing.T) {
	text := strings.Repeat("word ", 3000) // 15000 chars
	prompt := BuildPrompt(text, 1000)
	if len(prompt) > 1000+len(promptTemplate) {
		t.Errorf("prompt length %d exceeds window plus template", len(prompt))
	}
	if !strings.Contains(prompt, "word") {
		t.Error("prompt lost the passage text")
	}
}

func TestBuildPromptKeepsShortText(t *testing.T) {
	prompt := BuildPrompt("a quiet evening by the fire", 0)
	if !strings.Contains(prompt, "a quiet evening by the fire") {
		t.Error("short text should be embedded unmodified")
	}
	if !strings.Contains(prompt, `"mood"`) {
		t.Error("prompt template lost the schema instructions")
	}
}

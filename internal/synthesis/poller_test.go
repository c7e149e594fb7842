package synthesis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/asp2131/storia/internal/descriptor"
)

func fastRetry(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func fastPoll(budget time.Duration) PollPolicy {
	return PollPolicy{InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Budget: budget}
}

func testRequest() Request {
	return Request{Prompt: "rain on a tin roof", DurationSecs: 20, Format: "mp3"}
}

func TestSubmitWithRetryRecoversFromTransientFailures(t *testing.T) {
	mock := NewMockClient()
	mock.TransientSubmitFailures = 2

	handle, billed, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(3), nil)
	if err != nil {
		t.Fatalf("SubmitWithRetry() error = %v", err)
	}
	if handle.ID == "" {
		t.Fatal("expected a job handle")
	}
	if billed != 20 {
		t.Errorf("billed duration = %d, want 20", billed)
	}
	if got := mock.SubmitCount(); got != 3 {
		t.Errorf("submit count = %d, want 3", got)
	}
}

func TestSubmitWithRetryStopsOnPermanentError(t *testing.T) {
	mock := NewMockClient()
	mock.FailSubmit = true
	mock.SubmitFailKind = KindRequest

	_, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(3), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsTransient(err) {
		t.Errorf("error should not be transient: %v", err)
	}
	if got := mock.SubmitCount(); got != 1 {
		t.Errorf("submit count = %d, want 1 (no retries on request errors)", got)
	}
}

func TestSubmitWithRetryExhaustsBudget(t *testing.T) {
	mock := NewMockClient()
	mock.FailSubmit = true

	_, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(2), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsTransient(err) {
		t.Errorf("exhausted transport failures should surface as transient: %v", err)
	}
	if got := mock.SubmitCount(); got != 3 {
		t.Errorf("submit count = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestSubmitWithRetryClampsDuration(t *testing.T) {
	mock := NewMockClient()
	mock.MaxDuration = 30

	_, billed, err := SubmitWithRetry(context.Background(), mock, Request{Prompt: "wind", DurationSecs: 300}, fastRetry(0), nil)
	if err != nil {
		t.Fatalf("SubmitWithRetry() error = %v", err)
	}
	if billed != 30 {
		t.Errorf("billed duration = %d, want clamped 30", billed)
	}
	durations := mock.SubmittedDurations()
	if len(durations) != 1 || durations[0] != 30 {
		t.Errorf("provider saw durations %v, want [30]", durations)
	}
}

func TestClampBounds(t *testing.T) {
	cases := []struct {
		in, max, want int
	}{
		{0, 30, 1},
		{-5, 30, 1},
		{15, 30, 15},
		{30, 30, 30},
		{31, 30, 30},
		{300, 30, 30},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in, tc.max); got != tc.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestPollUntilDoneSucceedsAfterPending(t *testing.T) {
	mock := NewMockClient()
	mock.PendingPolls = 3
	mock.Audio = []byte("ambience")

	handle, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(0), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := PollUntilDone(context.Background(), mock, handle, fastPoll(time.Second), nil)
	if err != nil {
		t.Fatalf("PollUntilDone() error = %v", err)
	}
	if string(res.Audio) != "ambience" {
		t.Errorf("audio = %q, want %q", res.Audio, "ambience")
	}
	if res.Location == "" {
		t.Error("expected a location on success")
	}
	if res.Polls != 4 {
		t.Errorf("polls = %d, want 4 (3 pending + 1 terminal)", res.Polls)
	}
}

func TestPollUntilDoneReportsServiceFailure(t *testing.T) {
	mock := NewMockClient()
	mock.Outcome = StateFailed
	mock.FailReason = "gpu pool exhausted"

	handle, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(0), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = PollUntilDone(context.Background(), mock, handle, fastPoll(time.Second), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if KindOf(err) != KindFailed {
		t.Errorf("kind = %q, want %q", KindOf(err), KindFailed)
	}
	if IsTimeout(err) {
		t.Error("service failure must not be reported as a timeout")
	}
	if !strings.Contains(err.Error(), "gpu pool exhausted") {
		t.Errorf("error should carry the provider reason, got %v", err)
	}
}

func TestPollUntilDoneTimesOutDistinctly(t *testing.T) {
	mock := NewMockClient()
	mock.NeverComplete = true

	handle, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(0), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = PollUntilDone(context.Background(), mock, handle, fastPoll(20*time.Millisecond), nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("kind = %q, want %q", KindOf(err), KindTimeout)
	}
	if KindOf(err) == KindFailed {
		t.Error("budget exhaustion must not look like a provider failure")
	}
	if mock.PollCount() == 0 {
		t.Error("the job should have been polled at least once before timing out")
	}
}

func TestPollUntilDoneReportsCanceledJobs(t *testing.T) {
	mock := NewMockClient()
	mock.Outcome = StateCanceled

	handle, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(0), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = PollUntilDone(context.Background(), mock, handle, fastPoll(time.Second), nil)
	if KindOf(err) != KindCanceled {
		t.Errorf("kind = %q, want %q", KindOf(err), KindCanceled)
	}
}

func TestPollUntilDoneHonorsContextCancellation(t *testing.T) {
	mock := NewMockClient()
	mock.NeverComplete = true

	handle, _, err := SubmitWithRetry(context.Background(), mock, testRequest(), fastRetry(0), nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PollUntilDone(ctx, mock, handle, fastPoll(time.Minute), nil)
	if err == nil {
		t.Fatal("expected an error from the canceled context")
	}
	if IsTimeout(err) {
		t.Error("context cancellation should not be reported as a poll timeout")
	}
}

func TestBuildPromptSkipsEmptyDescriptors(t *testing.T) {
	set := descriptor.Set{
		Mood:             "tense",
		Setting:          "forest",
		TimeOfDay:        "night",
		Weather:          "none",
		ActivityLevel:    "low",
		Atmosphere:       "ominous",
		SceneType:        "action",
		DominantElements: "wind, branches creaking",
	}
	prompt := BuildPrompt(set)
	if !strings.Contains(prompt, "forest") || !strings.Contains(prompt, "tense") {
		t.Errorf("prompt missing core descriptors: %q", prompt)
	}
	if strings.Contains(prompt, "Weather") {
		t.Errorf("prompt should omit weather %q when it is none: %q", set.Weather, prompt)
	}
	if !strings.Contains(prompt, "wind, branches creaking") {
		t.Errorf("prompt should carry dominant elements: %q", prompt)
	}
}

package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	AmbientName = "ambient"

	ambientDefaultMaxDuration = 30 // seconds
	ambientDefaultFormat      = "mp3"
	ambientDefaultTimeout     = 30 * time.Second
)

// AmbientConfig holds configuration for the HTTP synthesis provider. The wire
// contract is a generic async generation API: POST /v1/generations returns a
// job id, GET /v1/generations/{id} reports status, and the finished audio is
// fetched from the URL the status document names.
type AmbientConfig struct {
	APIKey          string
	BaseURL         string
	MaxDurationSecs int
	Format          string
	RPS             float64
	Timeout         time.Duration
	HTTPClient      *http.Client // optional (tests)
}

// AmbientClient implements Client over HTTP.
type AmbientClient struct {
	apiKey      string
	baseURL     string
	maxDuration int
	format      string
	rps         float64
	client      *http.Client
}

// NewAmbientClient creates an HTTP synthesis client.
func NewAmbientClient(cfg AmbientConfig) *AmbientClient {
	if cfg.MaxDurationSecs <= 0 {
		cfg.MaxDurationSecs = ambientDefaultMaxDuration
	}
	if cfg.Format == "" {
		cfg.Format = ambientDefaultFormat
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = ambientDefaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2.0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &AmbientClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxDuration: cfg.MaxDurationSecs,
		format:      cfg.Format,
		rps:         cfg.RPS,
		client:      httpClient,
	}
}

// Name returns the provider identifier.
func (c *AmbientClient) Name() string {
	return AmbientName
}

// MaxDurationSecs returns the service duration ceiling.
func (c *AmbientClient) MaxDurationSecs() int {
	return c.maxDuration
}

// RequestsPerSecond returns the configured rate limit.
func (c *AmbientClient) RequestsPerSecond() float64 {
	return c.rps
}

// Submit starts a generation job.
func (c *AmbientClient) Submit(ctx context.Context, req Request) (JobHandle, error) {
	wireReq := generationRequest{
		Prompt:          req.Prompt,
		DurationSeconds: Clamp(req.DurationSecs, c.maxDuration),
		Format:          c.format,
		Params:          req.Params,
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/generations", &wireReq)
	if err != nil {
		return JobHandle{}, err
	}

	var wireResp generationStatus
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return JobHandle{}, &Error{Kind: KindTransport, Message: "failed to unmarshal submit response: " + err.Error()}
	}
	if wireResp.ID == "" {
		return JobHandle{}, &Error{Kind: KindTransport, Message: "submit response missing job id"}
	}

	return JobHandle{ID: wireResp.ID, Provider: AmbientName}, nil
}

// Poll reports the job's current state.
func (c *AmbientClient) Poll(ctx context.Context, handle JobHandle) (PollStatus, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/generations/"+handle.ID, nil)
	if err != nil {
		return PollStatus{}, err
	}

	var wireResp generationStatus
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return PollStatus{}, &Error{Kind: KindTransport, Message: "failed to unmarshal status response: " + err.Error()}
	}

	status := PollStatus{Location: wireResp.AudioURL, Reason: wireResp.Error}
	switch wireResp.Status {
	case "succeeded", "completed":
		status.State = StateSucceeded
	case "failed", "error":
		status.State = StateFailed
		if status.Reason == "" {
			status.Reason = "service reported failure"
		}
	case "canceled", "cancelled":
		status.State = StateCanceled
	default:
		// "pending", "queued", "processing" and anything unrecognized keep
		// the poller waiting inside its budget.
		status.State = StatePending
	}
	return status, nil
}

// Fetch downloads finished audio. Relative locations resolve against the
// provider base URL.
func (c *AmbientClient) Fetch(ctx context.Context, location string) ([]byte, error) {
	url := location
	if strings.HasPrefix(location, "/") {
		url = c.baseURL + location
	}
	return c.do(ctx, http.MethodGet, url, nil)
}

// do performs one HTTP exchange and maps status codes onto the error
// taxonomy: 429/5xx transport (transient), other non-2xx request (permanent).
func (c *AmbientClient) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to read response: " + err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{
			Kind:       KindTransport,
			Message:    string(respBody),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterHint(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, &Error{
			Kind:       KindRequest,
			Message:    string(respBody),
			StatusCode: resp.StatusCode,
		}
	}
}

func retryAfterHint(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Wire types.

type generationRequest struct {
	Prompt          string            `json:"prompt"`
	DurationSeconds int               `json:"duration_seconds"`
	Format          string            `json:"format,omitempty"`
	Params          map[string]string `json:"params,omitempty"`
}

type generationStatus struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

var _ Client = (*AmbientClient)(nil)

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	GatewayName = "gateway"

	gatewayDefaultModel   = "anthropic/claude-3.5-haiku"
	gatewayDefaultTimeout = 60 * time.Second
)

// GatewayConfig holds configuration for the raw-HTTP gateway client. Any
// OpenAI-compatible chat-completions endpoint works (OpenRouter, a local
// proxy, vLLM).
type GatewayConfig struct {
	APIKey     string
	BaseURL    string // e.g. "https://openrouter.ai/api/v1"
	Model      string
	MaxChars   int     // prompt text window cap
	RPS        float64 // requests per second for the worker token bucket
	Timeout    time.Duration
	HTTPClient *http.Client // optional (tests)
}

// GatewayClient implements Client against an OpenAI-compatible HTTP endpoint
// without the SDK. It makes exactly one attempt per Classify call; the
// Retrying wrapper owns backoff.
type GatewayClient struct {
	apiKey   string
	baseURL  string
	model    string
	maxChars int
	rps      float64
	client   *http.Client
}

// NewGatewayClient creates a gateway classification client.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.Model == "" {
		cfg.Model = gatewayDefaultModel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxTextChars
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = gatewayDefaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5.0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &GatewayClient{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		rps:      cfg.RPS,
		client:   httpClient,
	}
}

// Name returns the provider identifier.
func (c *GatewayClient) Name() string {
	return GatewayName
}

// RequestsPerSecond returns the configured rate limit.
func (c *GatewayClient) RequestsPerSecond() float64 {
	return c.rps
}

// Classify sends one chat-completions request and parses the descriptor JSON
// out of the response text.
func (c *GatewayClient) Classify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	prompt := BuildPrompt(req.Text, c.maxChars)
	wireReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	}

	wireResp, err := c.doRequest(ctx, &wireReq)
	if err != nil {
		return nil, err
	}

	if len(wireResp.Choices) == 0 {
		return nil, &Error{Kind: KindUnparseable, Message: "no choices in response"}
	}
	content := wireResp.Choices[0].Message.Content

	set, err := ParseDescriptors(content)
	if err != nil {
		return nil, err
	}

	return &Result{
		Descriptors: set,
		RawContent:  content,
		Provider:    GatewayName,
		Model:       wireResp.Model,
		Attempts:    1,
		InputChars:  len(prompt),
		Elapsed:     time.Since(start),
		RequestID:   requestID,
	}, nil
}

func (c *GatewayClient) doRequest(ctx context.Context, body *chatRequest) (*chatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
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
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{
			Kind:       KindTransport,
			Message:    string(respBody),
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, &Error{
			Kind:       KindRequest,
			Message:    string(respBody),
			StatusCode: resp.StatusCode,
		}
	}

	var wireResp chatResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to unmarshal response: " + err.Error()}
	}
	return &wireResp, nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
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

// Wire types for the OpenAI-compatible chat completions endpoint.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var _ Client = (*GatewayClient)(nil)

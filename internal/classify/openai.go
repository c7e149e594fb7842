package classify

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/google/uuid"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the SDK-backed OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // optional, for OpenAI-compatible servers
	MaxChars   int
	RPS        float64
	Timeout    time.Duration
	HTTPClient *http.Client // optional (tests)
}

// OpenAIClient implements Client with the official OpenAI SDK. SDK-internal
// retries are disabled so the Retrying wrapper is the only backoff authority
// and attempt counts stay truthful for cost accounting.
type OpenAIClient struct {
	model    string
	maxChars int
	rps      float64
	client   openai.Client
}

// NewOpenAIClient creates an OpenAI classification client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxTextChars
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5.0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		rps:      cfg.RPS,
		client:   openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIClient) RequestsPerSecond() float64 {
	return c.rps
}

// Classify sends one chat-completions request through the SDK.
func (c *OpenAIClient) Classify(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	prompt := BuildPrompt(req.Text, c.maxChars)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0.2),
		MaxCompletionTokens: openai.Int(512),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindUnparseable, Message: "no choices in response"}
	}
	content := resp.Choices[0].Message.Content

	set, err := ParseDescriptors(content)
	if err != nil {
		return nil, err
	}

	return &Result{
		Descriptors: set,
		RawContent:  content,
		Provider:    OpenAIName,
		Model:       resp.Model,
		Attempts:    1,
		InputChars:  len(prompt),
		Elapsed:     time.Since(start),
		RequestID:   requestID,
	}, nil
}

// mapOpenAIError converts SDK errors into the classify taxonomy: 429 and 5xx
// are transient transport failures, other API statuses are permanent request
// failures, anything else is a network-level transport failure.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &Error{
				Kind:       KindTransport,
				Message:    apiErr.Message,
				StatusCode: apiErr.StatusCode,
				RetryAfter: retryAfter,
			}
		}
		return &Error{
			Kind:       KindRequest,
			Message:    apiErr.Message,
			StatusCode: apiErr.StatusCode,
		}
	}
	return &Error{Kind: KindTransport, Message: err.Error()}
}

var _ Client = (*OpenAIClient)(nil)

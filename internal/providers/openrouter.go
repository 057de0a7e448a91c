package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterConfig holds configuration for the OpenRouter describer.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RPS          float64       // Requests per second (0 = unlimited)
	MaxRetries   int           // HTTP attempts within one describe call (default: 2)
	RetryDelay   time.Duration // Base delay between HTTP attempts (default: 1s)
}

// OpenRouterDescriber implements Describer over the OpenRouter chat API.
// The schema is requested but not every routed model honors it, so the reply
// is returned as free-form content.
type OpenRouterDescriber struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
	limiter      *RateLimiter
	maxRetries   int
	retryDelay   time.Duration
}

type orChatRequest struct {
	Model          string          `json:"model"`
	Messages       []orMessage     `json:"messages"`
	ResponseFormat *orFormat       `json:"response_format,omitempty"`
	Usage          *orUsageOptions `json:"usage,omitempty"`
}

type orUsageOptions struct {
	Include bool `json:"include"`
}

type orMessage struct {
	Role    string   `json:"role"`
	Content []orPart `json:"content"`
}

type orPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *orImageRef `json:"image_url,omitempty"`
}

type orImageRef struct {
	URL string `json:"url"`
}

type orFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type orChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"` // string or number
	} `json:"error,omitempty"`
}

// text returns the first choice's content. Strings are unquoted; structured
// content is returned as its JSON encoding.
func (r *orChatResponse) text() string {
	raw := r.Choices[0].Message.Content
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// transientError marks a failed attempt worth repeating.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// NewOpenRouterDescriber creates a new OpenRouter describer.
func NewOpenRouterDescriber(cfg OpenRouterConfig) *OpenRouterDescriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "google/gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &OpenRouterDescriber{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      NewRateLimiterRPS(cfg.RPS),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
}

// Name returns the backend identifier.
func (c *OpenRouterDescriber) Name() string {
	return OpenRouterName
}

// Model returns the configured model.
func (c *OpenRouterDescriber) Model() string {
	return c.defaultModel
}

// RateLimiterStatus reports the shared limiter state.
func (c *OpenRouterDescriber) RateLimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Describe sends one vision chat request and returns the raw assistant content.
func (c *OpenRouterDescriber) Describe(ctx context.Context, req *DescribeRequest) (*DescribeResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	schema, err := json.Marshal(map[string]any{
		"name":   "image_output",
		"strict": true,
		"schema": DescriptionSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	chat := orChatRequest{
		Model: c.defaultModel,
		Messages: []orMessage{{
			Role: "user",
			Content: []orPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &orImageRef{URL: req.ImageURI}},
			},
		}},
		ResponseFormat: &orFormat{Type: "json_schema", JSONSchema: schema},
		Usage:          &orUsageOptions{Include: true},
	}

	var resp *orChatResponse
	err = retry.Do(
		func() error {
			r, err := c.send(ctx, &chat)
			resp = r
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(max(c.retryDelay/2, time.Millisecond)),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(func(err error) bool {
			var te *transientError
			var rl *RateLimitError
			return errors.As(err, &te) || errors.As(err, &rl)
		}),
		// Upstream caches key on the body, so a retried prompt gets a nonce.
		retry.OnRetry(func(n uint, _ error) { addNonce(&chat, n+1) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return &DescribeResult{
		Content:          resp.text(),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		ExecutionTime:    time.Since(start),
		Provider:         OpenRouterName,
		ModelUsed:        resp.Model,
		RequestID:        requestID,
	}, nil
}

// send performs one HTTP attempt and classifies its failure.
func (c *OpenRouterDescriber) send(ctx context.Context, chat *orChatRequest) (*orChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/folio")
	httpReq.Header.Set("X-Title", "Folio")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transient("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transient("failed to read response: %w", err)
	}

	switch code := httpResp.StatusCode; {
	case code == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return nil, &RateLimitError{
			Message:    "OpenRouter rate limited: " + string(data),
			RetryAfter: retryAfter,
			StatusCode: code,
		}
	case retryableStatus(code):
		return nil, transient("OpenRouter error (status %d): %s", code, data)
	case code != http.StatusOK:
		return nil, fmt.Errorf("OpenRouter error (status %d): %s", code, data)
	}

	var resp orChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		switch fmt.Sprint(resp.Error.Code) {
		case "overloaded", "rate_limit_exceeded", "500", "502", "503":
			return nil, transient("OpenRouter API error (retryable): %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("OpenRouter API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, transient("empty choices in response (model=%s, id=%s)", resp.Model, resp.ID)
	}
	return &resp, nil
}

// retryableStatus reports HTTP statuses a fresh attempt may fix. 413 and 422
// are often stale cache entries that the nonce busts.
func retryableStatus(code int) bool {
	return code == http.StatusRequestEntityTooLarge ||
		code == http.StatusUnprocessableEntity ||
		code >= 500
}

// addNonce tags the prompt text of the last user message with a unique marker.
func addNonce(chat *orChatRequest, attempt uint) {
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		msg := &chat.Messages[i]
		if msg.Role != "user" {
			continue
		}
		for j := range msg.Content {
			if msg.Content[j].Type == "text" {
				msg.Content[j].Text += fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, uuid.New().String()[:16])
				return
			}
		}
		return
	}
}

var _ Describer = (*OpenRouterDescriber)(nil)

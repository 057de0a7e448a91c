package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OllamaName         = "ollama"
	OllamaBaseURL      = "http://localhost:11434"
	ollamaDefaultModel = "llava:7b"
)

// OllamaConfig holds configuration for the Ollama describer.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	RateLimit float64 // Requests per second (0 = unlimited)
}

// OllamaDescriber implements Describer against a local Ollama server.
// Local vision models answer in free-form text, so only Content is set.
type OllamaDescriber struct {
	baseURL string
	model   string
	limiter *RateLimiter
	client  *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // raw base64, no data: prefix
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaDescriber creates a new Ollama describer.
func NewOllamaDescriber(cfg OllamaConfig) *OllamaDescriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &OllamaDescriber{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		limiter: NewRateLimiterRPS(cfg.RateLimit),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend identifier.
func (c *OllamaDescriber) Name() string {
	return OllamaName
}

// Model returns the configured model.
func (c *OllamaDescriber) Model() string {
	return c.model
}

// RateLimiterStatus reports the shared limiter state.
func (c *OllamaDescriber) RateLimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Describe sends the prompt with the image attached and returns the model's text.
func (c *OllamaDescriber) Describe(ctx context.Context, req *DescribeRequest) (*DescribeResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	image := req.ImageURI
	if strings.HasPrefix(image, "data:") {
		_, payload, ok := strings.Cut(image, ",")
		if !ok {
			return nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
		}
		image = payload
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "user", Content: req.Prompt, Images: []string{image}},
		},
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if chatResp.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", chatResp.Error)
	}

	return &DescribeResult{
		Content:          chatResp.Message.Content,
		PromptTokens:     chatResp.PromptEvalCount,
		CompletionTokens: chatResp.EvalCount,
		ExecutionTime:    time.Since(start),
		Provider:         OllamaName,
		ModelUsed:        chatResp.Model,
		RequestID:        requestID,
	}, nil
}

var _ Describer = (*OllamaDescriber)(nil)

package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI describer.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	RateLimit  float64       // Requests per second (0 = unlimited)
	MaxRetries int           // SDK transport retries within one describe call
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIDescriber implements Describer with the official OpenAI SDK using
// strict json_schema structured output.
type OpenAIDescriber struct {
	model   string
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAIDescriber creates a new OpenAI describer.
func NewOpenAIDescriber(cfg OpenAIConfig) *OpenAIDescriber {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIDescriber{
		model:   cfg.Model,
		limiter: NewRateLimiterRPS(cfg.RateLimit),
		client:  openai.NewClient(opts...),
	}
}

// Name returns the backend identifier.
func (c *OpenAIDescriber) Name() string {
	return OpenAIName
}

// Model returns the configured model.
func (c *OpenAIDescriber) Model() string {
	return c.model
}

// RateLimiterStatus reports the shared limiter state.
func (c *OpenAIDescriber) RateLimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Describe sends the image as a vision content part and requests a strict
// {title, description} object. The JSON schema is named after the page number.
func (c *OpenAIDescriber) Describe(ctx context.Context, req *DescribeRequest) (*DescribeResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Re-encode so the SDK always receives a canonical data URI.
	mimeType, data, err := ParseDataURI(req.ImageURI)
	if err != nil {
		return nil, err
	}
	imageURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL,
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   strconv.Itoa(req.PageNo),
					Schema: DescriptionSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := completion.Choices[0].Message.Content
	var d Description
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return nil, fmt.Errorf("failed to decode structured output: %w", err)
	}
	d.Clean()

	return &DescribeResult{
		Structured:       &d,
		Content:          content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		ExecutionTime:    time.Since(start),
		Provider:         OpenAIName,
		ModelUsed:        completion.Model,
		RequestID:        requestID,
	}, nil
}

func (c *OpenAIDescriber) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			c.limiter.Record429(retryAfter)
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}

// parseRetryAfter reads a Retry-After header in delta-seconds form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

var _ Describer = (*OpenAIDescriber)(nil)

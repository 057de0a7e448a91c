package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPrompt asks a vision model for a short structured description of one image.
const DefaultPrompt = "Analyze the provided image and generate a JSON object containing a 'title' and a 'description'. Both should be clear and concise, and limit the description to AT MOST 2 sentences."

var (
	// ErrNoStructuredOutput is returned when a free-form response contains no JSON object.
	ErrNoStructuredOutput = errors.New("no structured output in response")

	// ErrInvalidDataURI is returned when an image reference is not a base64 data URI.
	ErrInvalidDataURI = errors.New("invalid data URI")
)

// Describer turns an image reference into a title and description.
type Describer interface {
	// Name returns the backend identifier (e.g., "openai").
	Name() string

	// Describe issues exactly one request to the backend. Retries are the caller's concern.
	Describe(ctx context.Context, req *DescribeRequest) (*DescribeResult, error)
}

// DescribeRequest is one description request.
type DescribeRequest struct {
	// ImageURI is usually an inline base64 data URI and may be very large.
	ImageURI string
	Prompt   string
	// PageNo is an ancillary correlation token; some backends use it as the schema name.
	PageNo    int
	RequestID string
}

// Description is the structured {title, description} pair.
type Description struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DescribeResult is the response from a Describer.
// Typed backends fill Structured; free-form backends fill only Content.
type DescribeResult struct {
	Structured *Description `json:"structured,omitempty"`
	Content    string       `json:"content,omitempty"`

	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	ExecutionTime    time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
}

// RateLimitError is returned when the backend rejected the request with HTTP 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

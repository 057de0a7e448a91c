// Package metrics records and summarizes image description calls.
package metrics

import "time"

// Metric represents a single describe attempt.
// Metrics are append-only records held in memory for the life of the process.
type Metric struct {
	// Attribution (for filtering/aggregation)
	RequestID string `json:"request_id,omitempty"` // one reconstruction request
	Document  string `json:"document,omitempty"`   // source filename
	Page      int    `json:"page,omitempty"`
	Attempt   int    `json:"attempt,omitempty"` // 1-based try number

	// Provider info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Tokens
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Timing
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/providers"
)

// DefaultCapacity bounds how many metrics a Recorder keeps.
const DefaultCapacity = 10000

// Recorder holds metrics in memory, dropping the oldest beyond its capacity.
type Recorder struct {
	mu       sync.RWMutex
	metrics  []Metric
	capacity int
}

// NewRecorder creates a new metrics recorder.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{capacity: capacity}
}

// RecordOpts provides context for a metric recording.
type RecordOpts struct {
	RequestID string
	Document  string
	Page      int
	Attempt   int
}

// Record stores a single metric.
func (r *Recorder) Record(m Metric) {
	if r == nil {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	if over := len(r.metrics) - r.capacity; over > 0 {
		r.metrics = append(r.metrics[:0], r.metrics[over:]...)
	}
}

// RecordDescribe records metrics from a successful describe call.
func (r *Recorder) RecordDescribe(opts RecordOpts, result *providers.DescribeResult) error {
	if result == nil {
		return fmt.Errorf("nil describe result")
	}

	r.Record(Metric{
		RequestID: opts.RequestID,
		Document:  opts.Document,
		Page:      opts.Page,
		Attempt:   opts.Attempt,

		Provider: result.Provider,
		Model:    result.ModelUsed,

		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.PromptTokens + result.CompletionTokens,

		ExecutionSeconds: result.ExecutionTime.Seconds(),
		Success:          true,
	})
	return nil
}

// RecordError records a failed describe attempt.
func (r *Recorder) RecordError(opts RecordOpts, provider, errorType string, duration time.Duration) {
	r.Record(Metric{
		RequestID: opts.RequestID,
		Document:  opts.Document,
		Page:      opts.Page,
		Attempt:   opts.Attempt,

		Provider: provider,

		ExecutionSeconds: duration.Seconds(),
		Success:          false,
		ErrorType:        errorType,
	})
}

// Len returns the number of metrics held.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockDescriberName = "mock"

// MockDescriber is a Describer for testing.
type MockDescriber struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailFirst  int // Fail the first N requests (0 = never)
	// Response is returned as a typed result when set.
	Response *Description
	// ResponseText is returned as free-form content when Response is nil.
	ResponseText string
	// Responses maps an image URI to a typed response, overriding Response.
	Responses map[string]Description

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	perURI       map[string]int
}

// NewMockDescriber creates a new mock describer with sensible defaults.
func NewMockDescriber() *MockDescriber {
	return &MockDescriber{
		Latency:  time.Millisecond,
		Response: &Description{Title: "Mock Image", Description: "A mock description."},
	}
}

// Name returns the backend identifier.
func (c *MockDescriber) Name() string {
	return MockDescriberName
}

// Describe returns the configured response.
func (c *MockDescriber) Describe(ctx context.Context, req *DescribeRequest) (*DescribeResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	if c.perURI == nil {
		c.perURI = make(map[string]int)
	}
	c.perURI[req.ImageURI]++
	c.mu.Unlock()

	if c.ShouldFail {
		return nil, fmt.Errorf("mock describer configured to fail")
	}
	if c.FailFirst > 0 && int(count) <= c.FailFirst {
		return nil, fmt.Errorf("mock describer failing request %d of first %d", count, c.FailFirst)
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := &DescribeResult{
		Provider:      MockDescriberName,
		ModelUsed:     "mock",
		RequestID:     fmt.Sprintf("mock-%d", count),
		ExecutionTime: time.Since(start),
	}

	if d, ok := c.Responses[req.ImageURI]; ok {
		result.Structured = &d
		return result, nil
	}
	if c.Response != nil {
		d := *c.Response
		result.Structured = &d
		return result, nil
	}
	result.Content = c.ResponseText
	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockDescriber) RequestCount() int64 {
	return c.requestCount.Load()
}

// RequestsFor returns the number of requests made for one image URI.
func (c *MockDescriber) RequestsFor(uri string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perURI[uri]
}

// Reset resets the request counters.
func (c *MockDescriber) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.perURI = nil
	c.mu.Unlock()
}

var _ Describer = (*MockDescriber)(nil)

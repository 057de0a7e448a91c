package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testDataURI = "data:image/png;base64,iVBORw0KGgo="

func openAICompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 20,
			"total_tokens":      140,
		},
	}
}

func TestOpenAIDescriber_Describe(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization: %s", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAICompletion(`{"title":"Pie <b>Chart</b>","description":"Market share."}`))
	}))
	defer server.Close()

	d := NewOpenAIDescriber(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	result, err := d.Describe(context.Background(), &DescribeRequest{
		ImageURI: testDataURI,
		Prompt:   DefaultPrompt,
		PageNo:   7,
	})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if result.Structured == nil {
		t.Fatal("expected structured result")
	}
	if result.Structured.Title != "Pie Chart" || result.Structured.Description != "Market share." {
		t.Errorf("unexpected description: %+v", result.Structured)
	}
	if result.PromptTokens != 120 || result.CompletionTokens != 20 {
		t.Errorf("unexpected token counts: %d/%d", result.PromptTokens, result.CompletionTokens)
	}

	rf, _ := payload["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type = %v", rf["type"])
	}
	schema, _ := rf["json_schema"].(map[string]any)
	if schema["name"] != "7" || schema["strict"] != true {
		t.Errorf("unexpected json_schema: %v", schema)
	}

	raw, _ := json.Marshal(payload["messages"])
	if !strings.Contains(string(raw), testDataURI) {
		t.Errorf("image data URI not sent: %s", raw)
	}
}

func TestOpenAIDescriber_InvalidDataURI(t *testing.T) {
	d := NewOpenAIDescriber(OpenAIConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})
	_, err := d.Describe(context.Background(), &DescribeRequest{ImageURI: "https://example.com/a.png"})
	if !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("Describe() error = %v, want ErrInvalidDataURI", err)
	}
}

func TestOpenAIDescriber_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	d := NewOpenAIDescriber(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, RateLimit: 10})
	_, err := d.Describe(context.Background(), &DescribeRequest{ImageURI: testDataURI})

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Describe() error = %v, want RateLimitError", err)
	}
	if rlErr.RetryAfter.Seconds() != 3 {
		t.Errorf("RetryAfter = %v, want 3s", rlErr.RetryAfter)
	}
	if d.RateLimiterStatus().Last429.IsZero() {
		t.Error("expected limiter to record the 429")
	}
}

func TestOpenAIDescriber_MalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAICompletion("not json"))
	}))
	defer server.Close()

	d := NewOpenAIDescriber(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if _, err := d.Describe(context.Background(), &DescribeRequest{ImageURI: testDataURI}); err == nil {
		t.Error("expected error for malformed content")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("5"); got.Seconds() != 5 {
		t.Errorf("parseRetryAfter(5) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaDescriber_Describe(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           "llava:7b",
			Message:         ollamaMessage{Role: "assistant", Content: `The image shows {"title": "Cat", "description": "A cat."}`},
			Done:            true,
			PromptEvalCount: 50,
			EvalCount:       12,
		})
	}))
	defer server.Close()

	d := NewOllamaDescriber(OllamaConfig{BaseURL: server.URL + "/"})
	result, err := d.Describe(context.Background(), &DescribeRequest{ImageURI: testDataURI, Prompt: DefaultPrompt})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	if got.Model != "llava:7b" || got.Stream {
		t.Errorf("unexpected request: model=%q stream=%v", got.Model, got.Stream)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 || got.Messages[0].Images[0] != "iVBORw0KGgo=" {
		t.Errorf("expected raw base64 image, got %+v", got.Messages)
	}
	if result.Structured != nil {
		t.Error("Ollama should return free-form content only")
	}
	if result.CompletionTokens != 12 {
		t.Errorf("CompletionTokens = %d, want 12", result.CompletionTokens)
	}
	if _, err := ParseDescription(result.Content); err != nil {
		t.Errorf("ParseDescription() error = %v", err)
	}
}

func TestOllamaDescriber_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	d := NewOllamaDescriber(OllamaConfig{BaseURL: server.URL})
	if _, err := d.Describe(context.Background(), &DescribeRequest{ImageURI: testDataURI}); err == nil {
		t.Error("expected error")
	}
}

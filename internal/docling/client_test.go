package docling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy_500", http.StatusInternalServerError, true},
		{"unhealthy_503", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(ClientConfig{URL: server.URL + "/"})
			err := client.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnhealthy) {
				t.Errorf("expected ErrUnhealthy, got %v", err)
			}
		})
	}
}

func TestClient_StartConvert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1alpha/convert/file/async" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}

		want := map[string]string{
			"from_formats":              "docx",
			"ocr_engine":                "rapidocr",
			"pdf_backend":               "pypdfium2",
			"table_mode":                "accurate",
			"image_export_mode":         "embedded",
			"include_images":            "true",
			"md_page_break_placeholder": "<<PB>>",
			"do_picture_classification": "true",
		}
		for k, v := range want {
			if got := r.FormValue(k); got != v {
				t.Errorf("field %s = %q, want %q", k, got, v)
			}
		}
		if got := r.MultipartForm.Value["to_formats"]; len(got) != 2 || got[0] != "md" || got[1] != "json" {
			t.Errorf("to_formats = %v, want [md json]", got)
		}

		f, hdr, err := r.FormFile("files")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		if hdr.Filename != "memo.docx" || string(body) != "payload" {
			t.Errorf("unexpected file %q: %q", hdr.Filename, body)
		}

		json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", TaskStatus: TaskPending})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL, PageBreak: "<<PB>>"})
	status, err := client.StartConvert(context.Background(), "memo.docx", "", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("StartConvert() error = %v", err)
	}
	if status.TaskID != "task-1" || status.TaskStatus != TaskPending {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestClient_StartConvert_UnsupportedFormat(t *testing.T) {
	client := NewClient(ClientConfig{URL: "http://127.0.0.1:1"})
	_, err := client.StartConvert(context.Background(), "archive.zip", "", strings.NewReader(""))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("StartConvert() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestClient_WaitForResult(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1alpha/status/poll/task-1":
			status := TaskStarted
			if polls.Add(1) >= 3 {
				status = TaskSuccess
			}
			json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", TaskStatus: status})
		case "/v1alpha/result/task-1":
			w.Write([]byte(sampleResult))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL, PollInterval: time.Millisecond})
	raw, err := client.WaitForResult(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("WaitForResult() error = %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", polls.Load())
	}
	resp, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.Document.Filename != "report.docx" {
		t.Errorf("filename = %q", resp.Document.Filename)
	}
}

func TestClient_WaitForResult_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", TaskStatus: TaskFailure})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL, PollInterval: time.Millisecond})
	_, err := client.WaitForResult(context.Background(), "task-1")
	if !errors.Is(err, ErrTaskFailed) {
		t.Errorf("WaitForResult() error = %v, want ErrTaskFailed", err)
	}
}

func TestClient_WaitForResult_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", TaskStatus: TaskPending})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient(ClientConfig{URL: server.URL, PollInterval: time.Millisecond})
	if _, err := client.WaitForResult(ctx, "task-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForResult() error = %v, want deadline exceeded", err)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL})
	_, err := client.PollStatus(context.Background(), "task-1")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("PollStatus() error = %v, want status 500", err)
	}
}

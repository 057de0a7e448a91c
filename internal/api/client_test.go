package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "bad document"})
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	mux.HandleFunc("GET /id", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": r.Header.Get(RequestIDHeader)})
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		json.NewEncoder(w).Encode(map[string]string{"name": fh.Filename, "data": string(data)})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		var got map[string]string
		if err := client.Get(ctx, "/ok", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got["status"] != "ok" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("error status", func(t *testing.T) {
		err := client.Get(ctx, "/fail", nil)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected *StatusError, got %v", err)
		}
		if se.StatusCode != http.StatusUnprocessableEntity || se.Message != "bad document" {
			t.Errorf("unexpected error: %+v", se)
		}
		if se.RequestID == "" || !strings.Contains(se.Error(), se.RequestID) {
			t.Errorf("request id missing from %q", se.Error())
		}
	})

	t.Run("request id", func(t *testing.T) {
		var a, b map[string]string
		if err := client.Get(ctx, "/id", &a); err != nil {
			t.Fatal(err)
		}
		if err := client.Get(ctx, "/id", &b); err != nil {
			t.Fatal(err)
		}
		if a["id"] == "" || a["id"] == b["id"] {
			t.Errorf("ids = %q, %q, want distinct non-empty", a["id"], b["id"])
		}
	})

	t.Run("post raw", func(t *testing.T) {
		var got map[string]int
		if err := client.PostRaw(ctx, "/echo", "application/json", strings.NewReader(`{"n":3}`), &got); err != nil {
			t.Fatalf("PostRaw() error = %v", err)
		}
		if got["n"] != 3 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("post file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.docx")
		if err := os.WriteFile(path, []byte("contents"), 0o644); err != nil {
			t.Fatal(err)
		}
		var got map[string]string
		if err := client.PostFile(ctx, "/upload", path, &got); err != nil {
			t.Fatalf("PostFile() error = %v", err)
		}
		if got["name"] != "report.docx" || got["data"] != "contents" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("post missing file", func(t *testing.T) {
		if err := client.PostFile(ctx, "/upload", filepath.Join(t.TempDir(), "nope.pdf"), nil); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

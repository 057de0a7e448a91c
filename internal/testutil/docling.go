package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jackzampolin/folio/internal/docling"
)

// FakeDocling is an in-process stand-in for docling-serve's async API.
// Every upload becomes a task that finishes on its first poll.
type FakeDocling struct {
	Server *httptest.Server

	mu        sync.Mutex
	result    []byte
	failTasks bool
	unhealthy bool
	uploads   []string
}

// NewFakeDocling starts a fake backend that answers every finished task with result.
// The server is closed when the test ends.
func NewFakeDocling(t testing.TB, result []byte) *FakeDocling {
	t.Helper()
	f := &FakeDocling{result: result}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /v1alpha/convert/file/async", func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, hdr.Filename)
		f.mu.Unlock()
		writeTask(w, "task-1", docling.TaskPending)
	})
	mux.HandleFunc("GET /v1alpha/status/poll/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := docling.TaskSuccess
		if f.failTasks {
			state = docling.TaskFailure
		}
		f.mu.Unlock()
		writeTask(w, r.PathValue("id"), state)
	})
	mux.HandleFunc("GET /v1alpha/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(f.result)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func writeTask(w http.ResponseWriter, id, state string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docling.TaskStatus{TaskID: id, TaskStatus: state})
}

// URL returns the fake backend's base URL.
func (f *FakeDocling) URL() string {
	return f.Server.URL
}

// SetResult replaces the result returned for finished tasks.
func (f *FakeDocling) SetResult(result []byte) {
	f.mu.Lock()
	f.result = result
	f.mu.Unlock()
}

// FailTasks makes every polled task report failure.
func (f *FakeDocling) FailTasks(fail bool) {
	f.mu.Lock()
	f.failTasks = fail
	f.mu.Unlock()
}

// SetHealthy toggles the /health answer.
func (f *FakeDocling) SetHealthy(healthy bool) {
	f.mu.Lock()
	f.unhealthy = !healthy
	f.mu.Unlock()
}

// Uploads returns the filenames received so far.
func (f *FakeDocling) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
)

// LogEnv enables test logging to stderr when set.
const LogEnv = "FOLIO_TEST_LOG"

// ServerConfig is the listen address and logger for a test server.
type ServerConfig struct {
	Host   string
	Port   string
	Logger *slog.Logger
}

// NewServerConfig picks a free loopback port.
func NewServerConfig(t testing.TB) ServerConfig {
	t.Helper()
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}
	return ServerConfig{Host: "127.0.0.1", Port: port, Logger: Logger(t)}
}

// URL is the base URL the server will answer on.
func (c ServerConfig) URL() string {
	return "http://" + net.JoinHostPort(c.Host, c.Port)
}

// Logger returns a debug logger on stderr when FOLIO_TEST_LOG is set and a
// discarding one otherwise.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	var w io.Writer = io.Discard
	if os.Getenv(LogEnv) != "" {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// FindFreePort asks the kernel for an unused loopback port.
func FindFreePort() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}

// HTTPClient returns a client with a generous timeout for test requests.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Running tracks a server started in the background by Run.
type Running struct {
	cancel context.CancelFunc
	done   chan error

	once sync.Once
	err  error
}

// Run calls start in a goroutine with a cancelable child of ctx. The server is
// stopped when the test finishes unless Stop was already called.
func Run(t testing.TB, ctx context.Context, start func(context.Context) error) *Running {
	t.Helper()
	ctx, cancel := context.WithCancel(ctx)
	r := &Running{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- start(ctx) }()
	t.Cleanup(func() {
		if err := r.Stop(time.Minute); err != nil {
			t.Logf("server shutdown: %v", err)
		}
	})
	return r
}

// Stop cancels the server and waits up to timeout for start to return.
// Later calls return the first result.
func (r *Running) Stop(timeout time.Duration) error {
	r.once.Do(func() {
		r.cancel()
		select {
		case r.err = <-r.done:
		case <-time.After(timeout):
			r.err = fmt.Errorf("timeout after %v waiting for shutdown", timeout)
		}
	})
	return r.err
}

// WaitForServer polls /health every 50ms until it returns 200.
func WaitForServer(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health returned %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("server not ready after %v: %w", timeout, err)
	}
	return nil
}

// StatusResponse is the subset of GET /status the tests check.
type StatusResponse struct {
	Server     string   `json:"server"`
	Describers []string `json:"describers"`
	Docling    struct {
		URL    string `json:"url"`
		Health string `json:"health"`
	} `json:"docling"`
}

// GetStatus fetches and decodes GET /status.
func GetStatus(url string) (*StatusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status returned %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

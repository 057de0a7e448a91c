package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the client-generated id the server logs requests under.
const RequestIDHeader = "X-Request-Id"

// Client calls the Folio HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. The timeout covers
// conversion plus enrichment of a large document.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
}

// Get decodes the JSON body of GET path into result.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.send(ctx, http.MethodGet, path, "", nil, result)
}

// PostRaw posts an already encoded body.
func (c *Client) PostRaw(ctx context.Context, path, contentType string, body io.Reader, result any) error {
	return c.send(ctx, http.MethodPost, path, contentType, body, result)
}

// PostFile uploads a local file as multipart field "file". The file is
// streamed rather than buffered.
func (c *Client) PostFile(ctx context.Context, path, filePath string, result any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		part, err := form.CreateFormFile("file", filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	err = c.send(ctx, http.MethodPost, path, form.FormDataContentType(), pr, result)
	pr.Close()
	<-done
	return err
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return newStatusError(resp, requestID)
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ErrorResponse matches the server's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned for 4xx and 5xx responses.
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func newStatusError(resp *http.Response, requestID string) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{StatusCode: resp.StatusCode, RequestID: requestID, Message: strings.TrimSpace(string(body))}
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		se.Message = er.Error
	}
	return se
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s [request %s]", e.StatusCode, e.Message, e.RequestID)
}

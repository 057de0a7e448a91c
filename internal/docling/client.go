package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// DefaultPageBreak separates pages in the markdown rendering.
const DefaultPageBreak = "[PAGE BREAK]"

var (
	// ErrUnhealthy is returned when the backend health check fails.
	ErrUnhealthy = errors.New("docling health check failed")

	// ErrTaskFailed is returned when a conversion task ends in failure.
	ErrTaskFailed = errors.New("conversion task failed")
)

// ClientConfig configures a conversion backend client.
type ClientConfig struct {
	URL          string
	Timeout      time.Duration
	PollInterval time.Duration
	PageBreak    string
	Logger       *slog.Logger
}

// Client talks to a docling-serve instance.
type Client struct {
	url          string
	pollInterval time.Duration
	pageBreak    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a new conversion backend client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:5001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PageBreak == "" {
		cfg.PageBreak = DefaultPageBreak
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:          strings.TrimSuffix(cfg.URL, "/"),
		pollInterval: cfg.PollInterval,
		pageBreak:    cfg.PageBreak,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       cfg.Logger,
	}
}

// URL returns the backend base URL.
func (c *Client) URL() string {
	return c.url
}

// PageBreak returns the page-break marker requested from the backend.
func (c *Client) PageBreak() string {
	return c.pageBreak
}

// HealthCheck checks if the backend is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// StartConvert uploads a file and starts an asynchronous conversion to markdown and JSON.
func (c *Client) StartConvert(ctx context.Context, filename, contentType string, file io.Reader) (*TaskStatus, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	fields := [][2]string{
		{"from_formats", string(format)},
		{"to_formats", "md"},
		{"to_formats", "json"},
		{"ocr_engine", "rapidocr"},
		{"pdf_backend", "pypdfium2"},
		{"table_mode", "accurate"},
		{"image_export_mode", "embedded"},
		{"include_images", "true"},
		{"md_page_break_placeholder", c.pageBreak},
		{"do_picture_classification", "true"},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1alpha/convert/file/async", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var status TaskStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	c.logger.Info("conversion started", "task_id", status.TaskID, "file", filename, "format", format)
	return &status, nil
}

// PollStatus returns the current status of a conversion task.
func (c *Client) PollStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/v1alpha/status/poll/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var status TaskStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Result fetches the raw result of a finished conversion task.
func (c *Client) Result(ctx context.Context, taskID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/v1alpha/result/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WaitForResult polls a task until it finishes and returns its raw result.
func (c *Client) WaitForResult(ctx context.Context, taskID string) ([]byte, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := c.PollStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch status.TaskStatus {
		case TaskSuccess:
			return c.Result(ctx, taskID)
		case TaskFailure:
			return nil, fmt.Errorf("%w: task %s", ErrTaskFailed, taskID)
		default:
			c.logger.Debug("conversion in progress", "task_id", taskID, "status", status.TaskStatus)
		}
	}
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docling error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

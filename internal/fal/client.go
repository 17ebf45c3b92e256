// Package fal implements the fal.ai queue API: submit a request, poll its
// status, fetch the result. It also covers file upload to fal storage and
// download of generated assets.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const (
	defaultQueueURL = "https://queue.fal.run"
	defaultRestURL  = "https://rest.alpha.fal.ai"

	maxAttempts  = 3
	pollInterval = 2 * time.Second
)

// APIError is a non-2xx response from fal.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fal API error %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request is worth retrying.
func (e *APIError) Transient() bool {
	if e.StatusCode >= 500 {
		return true
	}
	return strings.Contains(e.Body, "downstream_service_error")
}

// ContentFiltered reports whether the request was rejected by the content
// filter. These never succeed on retry.
func (e *APIError) ContentFiltered() bool {
	return e.StatusCode == 422
}

// Client talks to the fal.ai queue and storage APIs.
type Client struct {
	apiKey     string
	httpClient *http.Client
	queueURL   string
	restURL    string
	backoff    func(attempt int) time.Duration
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs overrides the queue and storage endpoints, for tests.
func WithBaseURLs(queueURL, restURL string) Option {
	return func(c *Client) {
		c.queueURL = queueURL
		c.restURL = restURL
	}
}

// WithBackoff overrides the retry delay schedule.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient returns a Client authenticated with apiKey (the FAL_KEY value).
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		queueURL:   defaultQueueURL,
		restURL:    defaultRestURL,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 10 * time.Second
		},
		log: logging.WithComponent("fal"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queueSubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatusResponse struct {
	Status string `json:"status"`
	Logs   []struct {
		Message string `json:"message"`
	} `json:"logs"`
}

// Subscribe submits a request to app's queue, polls until it completes, and
// returns the raw result JSON. Queue log lines are streamed to onLog when it
// is non-nil. Transient failures are retried end to end.
func (c *Client) Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.log.Warn().Str("app", app).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := c.subscribeOnce(ctx, app, payload, onLog)
		if err == nil {
			return result, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.ContentFiltered() {
				return nil, fmt.Errorf("request rejected by content filter: %w", err)
			}
			if !apiErr.Transient() {
				return nil, err
			}
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", app, maxAttempts, lastErr)
}

func (c *Client) subscribeOnce(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error) {
	submit, err := c.submit(ctx, app, payload)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("app", app).Str("request_id", submit.RequestID).Msg("request queued")

	logged := 0
	for {
		status, err := c.pollStatus(ctx, submit.StatusURL)
		if err != nil {
			return nil, err
		}

		if onLog != nil {
			for _, entry := range status.Logs[min(logged, len(status.Logs)):] {
				onLog(entry.Message)
			}
			logged = len(status.Logs)
		}

		switch status.Status {
		case "COMPLETED":
			return c.fetchResult(ctx, submit.ResponseURL)
		case "IN_QUEUE", "IN_PROGRESS":
		default:
			return nil, fmt.Errorf("request %s ended in status %q", submit.RequestID, status.Status)
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) submit(ctx context.Context, app string, payload any) (*queueSubmitResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var resp queueSubmitResponse
	if err := c.doJSON(ctx, http.MethodPost, c.queueURL+"/"+app, bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to submit to %s: %w", app, err)
	}
	return &resp, nil
}

func (c *Client) pollStatus(ctx context.Context, statusURL string) (*queueStatusResponse, error) {
	var resp queueStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, statusURL+"?logs=1", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll status: %w", err)
	}
	return &resp, nil
}

func (c *Client) fetchResult(ctx context.Context, responseURL string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, responseURL, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch result: %w", err)
	}
	return raw, nil
}

type uploadInitiateResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// UploadFile uploads a local file to fal storage and returns its public URL.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	initPayload, err := json.Marshal(map[string]string{
		"content_type": contentType,
		"file_name":    filepath.Base(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload request: %w", err)
	}

	var initiate uploadInitiateResponse
	if err := c.doJSON(ctx, http.MethodPost, c.restURL+"/storage/upload/initiate", bytes.NewReader(initPayload), &initiate); err != nil {
		return "", fmt.Errorf("failed to initiate upload: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, initiate.UploadURL, f)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.log.Debug().Str("file", filepath.Base(path)).Str("url", initiate.FileURL).Msg("uploaded")
	return initiate.FileURL, nil
}

// DownloadFile streams url into destPath, creating parent directories.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := destPath + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize %s: %w", destPath, err)
	}

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

package httpinfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

var (
	ErrServiceUnavailable = errors.New("inference service unavailable")
	ErrInvalidResponse    = errors.New("invalid response from inference service")
)

// StatusError carries a non-2xx answer of the inference service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference service returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds the configuration for the inference client
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	RetryCount int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8090",
		Timeout:    30 * time.Second,
		RetryCount: 2,
	}
}

// Client is the HTTP client for a JSON inference service:
//
//	POST /v1/document  {"image": "<base64>"}
//	POST /v1/face      {"document_image": "<base64>", "selfie_image": "<base64>"}
//	POST /v1/liveness  {"frames": ["<base64>", ...], "expected_steps": [...]}
//
// The response body is handed back untouched; schema checks happen upstream.
type Client struct {
	httpClient *http.Client
	config     Config
}

// Ensure Client implements inference.Client at compile time
var _ inference.Client = (*Client)(nil)

// NewClient creates a new inference client
func NewClient(config Config) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

type documentRequest struct {
	Image []byte `json:"image"`
	Model string `json:"model,omitempty"`
}

type faceRequest struct {
	DocumentImage []byte `json:"document_image"`
	SelfieImage   []byte `json:"selfie_image"`
	Model         string `json:"model,omitempty"`
}

type livenessRequest struct {
	Frames        [][]byte `json:"frames"`
	ExpectedSteps []string `json:"expected_steps,omitempty"`
	Model         string   `json:"model,omitempty"`
}

// RunDocumentAnalysis calls POST /v1/document
func (c *Client) RunDocumentAnalysis(ctx context.Context, image []byte) (json.RawMessage, error) {
	return c.doRequestWithRetry(ctx, "/v1/document", documentRequest{Image: image, Model: c.config.Model})
}

// RunFaceComparison calls POST /v1/face
func (c *Client) RunFaceComparison(ctx context.Context, documentImage, selfieImage []byte) (json.RawMessage, error) {
	return c.doRequestWithRetry(ctx, "/v1/face", faceRequest{
		DocumentImage: documentImage,
		SelfieImage:   selfieImage,
		Model:         c.config.Model,
	})
}

// RunLivenessAnalysis calls POST /v1/liveness
func (c *Client) RunLivenessAnalysis(ctx context.Context, frames [][]byte, expectedSteps []string) (json.RawMessage, error) {
	return c.doRequestWithRetry(ctx, "/v1/liveness", livenessRequest{
		Frames:        frames,
		ExpectedSteps: expectedSteps,
		Model:         c.config.Model,
	})
}

// maxBackoff is the maximum backoff duration for retries
const maxBackoff = 30 * time.Second

// calculateBackoff calculates exponential backoff duration for a given attempt
// Returns 1s, 2s, 4s, 8s, etc. up to maxBackoff
func calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	seconds := 1
	for i := 1; i < attempt && i < 6; i++ {
		seconds *= 2
	}
	d := time.Duration(seconds) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// doRequestWithRetry executes the request with retry logic
func (c *Client) doRequestWithRetry(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		resp, err := c.doRequest(ctx, path, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Don't retry on context errors
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Don't retry on client errors (4xx) - only retry on server errors (5xx)
		if isClientError(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

// isClientError checks if the error is a 4xx answer
func isClientError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}

// doRequest executes a single HTTP request
func (c *Client) doRequest(ctx context.Context, path string, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}

	return json.RawMessage(respBody), nil
}

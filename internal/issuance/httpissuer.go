package issuance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrIssuerRejected = errors.New("issuer rejected the credential")

const (
	HeaderSignature      = "X-Veritas-Signature"
	HeaderTimestamp      = "X-Veritas-Timestamp"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// HTTPConfig configures the HTTP issuer client.
type HTTPConfig struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
}

// HTTPIssuer posts signed credential requests to the issuance service.
type HTTPIssuer struct {
	baseURL string
	secret  string
	client  *http.Client
	now     func() time.Time
}

// NewHTTPIssuer creates a new HTTPIssuer
func NewHTTPIssuer(cfg HTTPConfig) *HTTPIssuer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPIssuer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
	}
}

type issueResponse struct {
	ReceiptID string `json:"receipt_id"`
}

// Issue sends the credential. A 409 means the issuer already holds a record
// for this idempotency key; its receipt is returned as a success.
func (h *HTTPIssuer) Issue(ctx context.Context, req IssueRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal issue request: %w", err)
	}

	ts := strconv.FormatInt(h.now().Unix(), 10)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/credentials", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderIdempotencyKey, req.RequestID.String())
	httpReq.Header.Set(HeaderTimestamp, ts)
	httpReq.Header.Set(HeaderSignature, Sign(h.secret, ts, payload))
	httpReq.Header.Set("User-Agent", "Veritas-Issuer/1.0")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send issue request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read issue response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrIssuerRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return "", fmt.Errorf("issuer returned HTTP %d", resp.StatusCode)
	}

	var out issueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode issue response: %w", err)
	}
	if out.ReceiptID == "" {
		return "", errors.New("issuer response without receipt_id")
	}

	return out.ReceiptID, nil
}

// Sign returns the HMAC-SHA256 of "timestamp.payload".
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, timestamp string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, timestamp, payload)))
}

var _ Issuer = (*HTTPIssuer)(nil)

package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMediaUnavailable is returned when the media service cannot be reached
// or answers with a server error.
var ErrMediaUnavailable = errors.New("media store unavailable")

// maxObjectSize caps a single download.
const maxObjectSize = 32 << 20

// HTTPConfig holds the configuration for the HTTP media store
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPStore reads media from a blob service:
//
//	GET {base}/objects/{ref}    -> raw bytes
//	GET {base}/sequences/{ref}  -> {"frames": ["<base64>", ...]}
type HTTPStore struct {
	httpClient *http.Client
	config     HTTPConfig
}

// NewHTTPStore creates a new HTTPStore
func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPStore{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

type sequenceResponse struct {
	Frames [][]byte `json:"frames"`
}

func (s *HTTPStore) GetImage(ctx context.Context, ref string) ([]byte, error) {
	return s.get(ctx, "/objects/"+url.PathEscape(ref))
}

func (s *HTTPStore) GetFrameSequence(ctx context.Context, ref string) ([][]byte, error) {
	body, err := s.get(ctx, "/sequences/"+url.PathEscape(ref))
	if err != nil {
		return nil, err
	}

	var resp sequenceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sequence %s: %w", ref, err)
	}
	return resp.Frames, nil
}

func (s *HTTPStore) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, path)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrMediaUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("media store returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

var _ Store = (*HTTPStore)(nil)

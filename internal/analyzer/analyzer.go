package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

// ErrAnalysisTimeout is returned when an inference call exceeds its budget.
var ErrAnalysisTimeout = errors.New("analysis timed out")

// Thresholds are the gating floors of the three stages (0-100 scale).
// The defaults are uncalibrated and expected to be tuned against real data.
type Thresholds struct {
	DocumentMinConfidence float64
	FaceMinConfidence     float64
	LivenessMinConfidence float64
	AntiSpoofingMinScore  float64
}

// DefaultThresholds returns the gating floors used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DocumentMinConfidence: 70,
		FaceMinConfidence:     70,
		LivenessMinConfidence: 70,
		AntiSpoofingMinScore:  60,
	}
}

// Config holds what every analyzer needs besides the inference client.
type Config struct {
	Thresholds Thresholds
	Timeout    time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Timeout:    30 * time.Second,
	}
}

// base carries the shared plumbing of the three analyzers.
type base struct {
	client inference.Client
	config Config
	logger *slog.Logger
	now    func() time.Time
}

func newBase(client inference.Client, cfg Config, logger *slog.Logger, component string) base {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		client: client,
		config: cfg,
		logger: logger.With("component", component),
		now:    time.Now,
	}
}

// call runs fn under the configured timeout. The inference client may ignore
// ctx, so the wait itself is bounded too; a panic inside fn is returned as an
// error.
func (b base) call(ctx context.Context, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	type result struct {
		raw json.RawMessage
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("inference panic: %v", r)}
			}
		}()
		raw, err := fn(ctx)
		done <- result{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrAnalysisTimeout, res.err)
		}
		return res.raw, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrAnalysisTimeout, b.config.Timeout)
		}
		return nil, ctx.Err()
	}
}

func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

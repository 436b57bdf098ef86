package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/repository"
	"github.com/saturnino-fabrica-de-software/veritas/internal/telemetry"
)

// WorkerConfig holds the retry loop settings.
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    10 * time.Second,
		BatchSize:   10,
		MaxAttempts: 8,
		Lease:       time.Minute,
	}
}

// Worker retries pending credentials whose next_retry_at is due.
type Worker struct {
	repo   repository.CredentialRepositoryInterface
	gate   *Gate
	sink   telemetry.Sink
	logger *slog.Logger
	config   WorkerConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewWorker(repo repository.CredentialRepositoryInterface, gate *Gate, sink telemetry.Sink, logger *slog.Logger, cfg WorkerConfig) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if sink == nil {
		sink = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:   repo,
		gate:   gate,
		sink:   sink,
		logger: logger.With("component", "issuance.worker"),
		config: cfg,
		stopCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("issuance worker started", "interval", w.config.Interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("issuance worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("issuance worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("failed to process issuance retries", "error", err)
			}
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// ProcessBatch claims one batch of due credentials and retries each of them.
// It returns how many were issued.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	creds, err := w.repo.ClaimDueForRetry(ctx, w.config.BatchSize, w.config.MaxAttempts, w.config.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim pending credentials: %w", err)
	}
	if len(creds) == 0 {
		return 0, nil
	}

	issued := 0
	for _, c := range creds {
		got, err := w.gate.Retry(ctx, c)
		switch {
		case err == nil:
			if got != nil && got.IsIssued() {
				issued++
			}
		case errors.Is(err, domain.ErrIssuanceFailed):
			if got != nil && got.Attempts >= w.config.MaxAttempts {
				w.logger.Error("credential issuance exhausted, operator action required",
					"request_id", c.RequestID,
					"attempts", got.Attempts,
					"last_error", got.LastError,
				)
			}
		default:
			w.logger.Error("failed to retry credential issuance",
				"request_id", c.RequestID,
				"attempts", c.Attempts,
				"error", err,
			)
		}
	}

	w.sink.Record(telemetry.MetricIssuanceRetryLoop, float64(len(creds)), map[string]string{
		"issued": fmt.Sprintf("%d", issued),
	})

	return issued, nil
}

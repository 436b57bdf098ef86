package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/veritas/internal/analyzer"
	"github.com/saturnino-fabrica-de-software/veritas/internal/api"
	"github.com/saturnino-fabrica-de-software/veritas/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/veritas/internal/audit"
	"github.com/saturnino-fabrica-de-software/veritas/internal/config"
	"github.com/saturnino-fabrica-de-software/veritas/internal/database"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference/httpinfer"
	inferencemock "github.com/saturnino-fabrica-de-software/veritas/internal/inference/mock"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference/rekognition"
	"github.com/saturnino-fabrica-de-software/veritas/internal/issuance"
	"github.com/saturnino-fabrica-de-software/veritas/internal/media"
	"github.com/saturnino-fabrica-de-software/veritas/internal/repository"
	"github.com/saturnino-fabrica-de-software/veritas/internal/reviewer"
	"github.com/saturnino-fabrica-de-software/veritas/internal/risk"
	"github.com/saturnino-fabrica-de-software/veritas/internal/service"
	"github.com/saturnino-fabrica-de-software/veritas/internal/telemetry"
	"github.com/saturnino-fabrica-de-software/veritas/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Veritas API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("inference_provider", cfg.InferenceProvider),
		slog.String("issuer", cfg.Issuer),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	client, err := newInferenceClient(ctx, cfg)
	if err != nil {
		return err
	}

	store := newMediaStore(cfg)

	// Telemetry: Prometheus is always on, Kafka only when brokers are set
	prom := telemetry.NewPrometheusSink(logger)
	sinks := []telemetry.Sink{prom, telemetry.NewSlogSink(logger, slog.LevelDebug)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := telemetry.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			kafka.Close(flushCtx)
		}()
		sinks = append(sinks, kafka)
	}
	sink := telemetry.NewMulti(logger, sinks...)
	feed := ws.NewHub(logger)
	auditLogger := audit.NewMulti(audit.NewSlogLogger(logger), feed)

	// Issuance: Redis lock across replicas, in-process lock otherwise
	var locker issuance.Locker = issuance.NewLocalLocker()
	redisClient, err := issuance.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, using in-process issuance lock", slog.Any("error", err))
	} else if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		locker = issuance.NewRedisLocker(redisClient)
		logger.Info("redis issuance lock enabled")
	}

	var issuer issuance.Issuer
	switch cfg.Issuer {
	case config.IssuerHTTP:
		issuer = issuance.NewHTTPIssuer(issuance.HTTPConfig{BaseURL: cfg.IssuerURL, Secret: cfg.IssuerSecret})
	default:
		issuer = issuance.NewMockIssuer(0)
	}

	credentials := repository.NewCredentialRepository(pool)
	gateCfg := issuance.DefaultConfig()
	gateCfg.IssuerID = cfg.IssuerID
	gate := issuance.NewGate(credentials, issuer, locker, sink, auditLogger, logger, gateCfg)

	workerCfg := issuance.DefaultWorkerConfig()
	workerCfg.Interval = cfg.IssuanceWorkerInterval
	workerCfg.MaxAttempts = cfg.MaxIssuanceAttempts
	worker := issuance.NewWorker(credentials, gate, sink, logger, workerCfg)

	analyzerCfg := cfg.AnalyzerConfig()
	verifications := service.NewVerificationService(service.Dependencies{
		Requests:  repository.NewVerificationRepository(pool),
		Decisions: repository.NewDecisionRepository(pool),
		Reviews:   repository.NewReviewRepository(pool),
		Media:     store,
		Document:  analyzer.NewDocumentAnalyzer(client, analyzerCfg, logger),
		Face:      analyzer.NewFaceMatcher(client, analyzerCfg, logger),
		Liveness:  analyzer.NewLivenessEvaluator(client, analyzerCfg, logger),
		Scorer:    risk.NewScorer(cfg.RiskThresholds()),
		Issuer:    gate,
		Sink:      sink,
		Audit:     auditLogger,
		Logger:    logger,
	}).WithCriticalRiskScore(cfg.CriticalRiskScore)

	router := api.NewRouter(logger, &api.Dependencies{
		Verifications: verifications,
		Credentials:   gate,
		Tokens:        reviewer.NewTokenService(cfg.ReviewerJWTSecret, cfg.ReviewerJWTIssuer, cfg.ReviewerTokenTTL),
		DB:            pool,
		Metrics:       prom.Handler(),
		RateLimit:     middleware.RateLimiterConfig{},
		Workers:       []api.BackgroundWorker{worker},
		Feed:          feed,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func newInferenceClient(ctx context.Context, cfg *config.Config) (inference.Client, error) {
	switch cfg.InferenceProvider {
	case config.ProviderHTTP:
		return httpinfer.NewClient(httpinfer.Config{
			BaseURL:    cfg.InferenceURL,
			APIKey:     cfg.InferenceAPIKey,
			Model:      cfg.InferenceModel,
			Timeout:    cfg.AnalyzerTimeout,
			RetryCount: cfg.InferenceRetries,
		}), nil
	case config.ProviderRekognition:
		rekAPI, err := rekognition.NewAPI(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create rekognition client: %w", err)
		}
		rcfg := rekognition.DefaultConfig()
		rcfg.Region = cfg.AWSRegion
		rcfg.MatchSimilarity = cfg.MatchSimilarity
		return rekognition.NewBackend(rekAPI, rcfg), nil
	default:
		return inferencemock.New(), nil
	}
}

func newMediaStore(cfg *config.Config) media.Store {
	if cfg.MediaStore == config.MediaHTTP {
		return media.NewHTTPStore(media.HTTPConfig{
			BaseURL: cfg.MediaURL,
			Token:   cfg.MediaToken,
			Timeout: cfg.MediaTimeout,
		})
	}
	return media.NewMemoryStore()
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/veritas/internal/analyzer"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/risk"
)

const (
	ProviderMock        = "mock"
	ProviderHTTP        = "http"
	ProviderRekognition = "rekognition"

	MediaMemory = "memory"
	MediaHTTP   = "http"

	IssuerMock = "mock"
	IssuerHTTP = "http"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Reviewer auth
	ReviewerJWTSecret string        `envconfig:"REVIEWER_JWT_SECRET" required:"true"`
	ReviewerJWTIssuer string        `envconfig:"REVIEWER_JWT_ISSUER" default:"veritas"`
	ReviewerTokenTTL  time.Duration `envconfig:"REVIEWER_TOKEN_TTL" default:"8h"`

	// Inference
	InferenceProvider string        `envconfig:"INFERENCE_PROVIDER" default:"mock"`
	InferenceURL      string        `envconfig:"INFERENCE_URL"`
	InferenceAPIKey   string        `envconfig:"INFERENCE_API_KEY"`
	InferenceModel    string        `envconfig:"INFERENCE_MODEL"`
	InferenceRetries  int           `envconfig:"INFERENCE_RETRIES" default:"2"`
	AnalyzerTimeout   time.Duration `envconfig:"ANALYZER_TIMEOUT" default:"30s"`
	AWSRegion         string        `envconfig:"AWS_REGION" default:"us-east-1"`
	MatchSimilarity   float64       `envconfig:"REKOGNITION_MATCH_SIMILARITY" default:"80"`

	// Media store
	MediaStore   string        `envconfig:"MEDIA_STORE" default:"memory"`
	MediaURL     string        `envconfig:"MEDIA_URL"`
	MediaToken   string        `envconfig:"MEDIA_TOKEN"`
	MediaTimeout time.Duration `envconfig:"MEDIA_TIMEOUT" default:"10s"`

	// Gating thresholds (0-100). Uncalibrated defaults: tune against labelled reviews before production.
	DocumentMinConfidence float64 `envconfig:"DOCUMENT_MIN_CONFIDENCE" default:"70"`
	FaceMinConfidence     float64 `envconfig:"FACE_MIN_CONFIDENCE" default:"70"`
	LivenessMinConfidence float64 `envconfig:"LIVENESS_MIN_CONFIDENCE" default:"70"`
	AntiSpoofingMinScore  float64 `envconfig:"ANTI_SPOOFING_MIN_SCORE" default:"60"`

	// Risk. Same caveat as the gating thresholds.
	CriticalRiskScore         int           `envconfig:"CRITICAL_RISK_SCORE" default:"0"`
	RiskSyntheticConfidence   float64       `envconfig:"RISK_SYNTHETIC_CONFIDENCE" default:"99"`
	RiskMaxPreviousAttempts   int           `envconfig:"RISK_MAX_PREVIOUS_ATTEMPTS" default:"5"`
	RiskMinSubmissionDuration time.Duration `envconfig:"RISK_MIN_SUBMISSION_DURATION" default:"2s"`

	// Issuance
	Issuer                 string        `envconfig:"ISSUER" default:"mock"`
	IssuerURL              string        `envconfig:"ISSUER_URL"`
	IssuerSecret           string        `envconfig:"ISSUER_SECRET"`
	IssuerID               string        `envconfig:"ISSUER_ID" default:"veritas"`
	IssuanceWorkerInterval time.Duration `envconfig:"ISSUANCE_WORKER_INTERVAL" default:"10s"`
	MaxIssuanceAttempts    int           `envconfig:"MAX_ISSUANCE_ATTEMPTS" default:"8"`

	// Optional infrastructure
	RedisURL     string   `envconfig:"REDIS_URL"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"veritas.telemetry"`
}

// Load reads the configuration from the environment and validates it.
// Every failure is a FatalConfigurationFailure.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, domain.ErrFatalConfiguration.WithError(fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field requirements envconfig cannot express.
// The mock and in-memory backends are development defaults only.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ReviewerJWTSecret == "" {
		errs = append(errs, errors.New("REVIEWER_JWT_SECRET is required"))
	}

	switch c.InferenceProvider {
	case ProviderMock, ProviderRekognition:
	case ProviderHTTP:
		if c.InferenceURL == "" {
			errs = append(errs, errors.New("INFERENCE_URL is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown INFERENCE_PROVIDER %q", c.InferenceProvider))
	}

	switch c.MediaStore {
	case MediaMemory:
	case MediaHTTP:
		if c.MediaURL == "" {
			errs = append(errs, errors.New("MEDIA_URL is required for the http media store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MEDIA_STORE %q", c.MediaStore))
	}

	switch c.Issuer {
	case IssuerMock:
	case IssuerHTTP:
		if c.IssuerURL == "" {
			errs = append(errs, errors.New("ISSUER_URL is required for the http issuer"))
		}
		if c.IssuerSecret == "" {
			errs = append(errs, errors.New("ISSUER_SECRET is required for the http issuer"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ISSUER %q", c.Issuer))
	}

	if c.IsProduction() {
		if c.InferenceProvider == ProviderMock {
			errs = append(errs, errors.New("INFERENCE_PROVIDER mock is not allowed in production"))
		}
		if c.MediaStore == MediaMemory {
			errs = append(errs, errors.New("MEDIA_STORE memory is not allowed in production"))
		}
		if c.Issuer == IssuerMock {
			errs = append(errs, errors.New("ISSUER mock is not allowed in production"))
		}
	}

	if c.AnalyzerTimeout <= 0 {
		errs = append(errs, errors.New("ANALYZER_TIMEOUT must be positive"))
	}
	if c.MaxIssuanceAttempts < 1 {
		errs = append(errs, errors.New("MAX_ISSUANCE_ATTEMPTS must be at least 1"))
	}

	if len(errs) > 0 {
		return domain.ErrFatalConfiguration.WithError(errors.Join(errs...))
	}
	return nil
}

// AnalyzerConfig returns the stage gating configuration.
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		Thresholds: analyzer.Thresholds{
			DocumentMinConfidence: c.DocumentMinConfidence,
			FaceMinConfidence:     c.FaceMinConfidence,
			LivenessMinConfidence: c.LivenessMinConfidence,
			AntiSpoofingMinScore:  c.AntiSpoofingMinScore,
		},
		Timeout: c.AnalyzerTimeout,
	}
}

// RiskThresholds returns the fraud rule configuration.
func (c *Config) RiskThresholds() risk.Thresholds {
	return risk.Thresholds{
		SyntheticConfidence:   c.RiskSyntheticConfidence,
		MaxPreviousAttempts:   c.RiskMaxPreviousAttempts,
		MinSubmissionDuration: c.RiskMinSubmissionDuration,
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

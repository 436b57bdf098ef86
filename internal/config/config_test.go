package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

func TestLoad(t *testing.T) {
	required := map[string]string{
		"DATABASE_URL":        "postgres://localhost/test",
		"REVIEWER_JWT_SECRET": "secret123",
	}
	with := func(extra map[string]string) map[string]string {
		m := make(map[string]string, len(required)+len(extra))
		for k, v := range required {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with all required vars",
			envVars: with(map[string]string{
				"PORT":             "8080",
				"ENV":                "production",
				"ANALYZER_TIMEOUT":   "5s",
				"KAFKA_BROKERS":      "kafka-1:9092,kafka-2:9092",
				"INFERENCE_PROVIDER": "rekognition",
				"MEDIA_STORE":        "http",
				"MEDIA_URL":          "https://media.local",
				"ISSUER":             "http",
				"ISSUER_URL":         "https://issuer.local",
				"ISSUER_SECRET":      "s3cret",
			}),
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.DatabaseURL == "postgres://localhost/test" &&
					c.ReviewerJWTSecret == "secret123" &&
					c.AnalyzerTimeout == 5*time.Second &&
					len(c.KafkaBrokers) == 2
			},
		},
		{
			name:    "uses defaults when optional vars missing",
			envVars: with(nil),
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 3000 &&
					c.Environment == "development" &&
					c.InferenceProvider == ProviderMock &&
					c.MediaStore == MediaMemory &&
					c.Issuer == IssuerMock &&
					c.AnalyzerTimeout == 30*time.Second &&
					c.DocumentMinConfidence == 70 &&
					c.AntiSpoofingMinScore == 60 &&
					c.RiskMinSubmissionDuration == 2*time.Second
			},
		},
		{
			name: "fails when DATABASE_URL missing",
			envVars: map[string]string{
				"REVIEWER_JWT_SECRET": "secret123",
			},
			wantErr: true,
		},
		{
			name: "fails when REVIEWER_JWT_SECRET missing",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
			},
			wantErr: true,
		},
		{
			name:    "fails when http provider has no url",
			envVars: with(map[string]string{"INFERENCE_PROVIDER": "http"}),
			wantErr: true,
		},
		{
			name:    "fails when http issuer has no secret",
			envVars: with(map[string]string{"ISSUER": "http", "ISSUER_URL": "https://issuer.local"}),
			wantErr: true,
		},
		{
			name:    "production refuses the development defaults",
			envVars: with(map[string]string{"ENV": "production"}),
			wantErr: true,
		},
		{
			name: "production refuses mock inference",
			envVars: with(map[string]string{
				"ENV":           "production",
				"MEDIA_STORE":   "http",
				"MEDIA_URL":     "https://media.local",
				"ISSUER":        "http",
				"ISSUER_URL":    "https://issuer.local",
				"ISSUER_SECRET": "s3cret",
			}),
			wantErr: true,
		},
		{
			name: "production refuses the in-memory media store",
			envVars: with(map[string]string{
				"ENV":                "production",
				"INFERENCE_PROVIDER": "rekognition",
				"ISSUER":             "http",
				"ISSUER_URL":         "https://issuer.local",
				"ISSUER_SECRET":      "s3cret",
			}),
			wantErr: true,
		},
		{
			name: "production refuses the mock issuer",
			envVars: with(map[string]string{
				"ENV":                "production",
				"INFERENCE_PROVIDER": "rekognition",
				"MEDIA_STORE":        "http",
				"MEDIA_URL":          "https://media.local",
			}),
			wantErr: true,
		},
		{
			name:    "staging may still use the mocks",
			envVars: with(map[string]string{"ENV": "staging"}),
			wantErr: false,
		},
		{
			name:    "fails on unknown media store",
			envVars: with(map[string]string{"MEDIA_STORE": "ftp"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
					return
				}
				if !errors.Is(err, domain.ErrFatalConfiguration) {
					t.Errorf("Load() error = %v, want FatalConfiguration", err)
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestConfig_Projections(t *testing.T) {
	c := &Config{
		DocumentMinConfidence:     75,
		FaceMinConfidence:         72,
		LivenessMinConfidence:     71,
		AntiSpoofingMinScore:      65,
		AnalyzerTimeout:           10 * time.Second,
		RiskSyntheticConfidence:   98,
		RiskMaxPreviousAttempts:   3,
		RiskMinSubmissionDuration: time.Second,
	}

	ac := c.AnalyzerConfig()
	if ac.Thresholds.DocumentMinConfidence != 75 || ac.Thresholds.AntiSpoofingMinScore != 65 || ac.Timeout != 10*time.Second {
		t.Errorf("AnalyzerConfig() = %+v", ac)
	}

	rt := c.RiskThresholds()
	if rt.SyntheticConfidence != 98 || rt.MaxPreviousAttempts != 3 || rt.MinSubmissionDuration != time.Second {
		t.Errorf("RiskThresholds() = %+v", rt)
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}

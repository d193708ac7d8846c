package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Tiller control plane.
type Config struct {
	Port       int
	Version    string
	Model      ModelConfig
	Embedding  EmbeddingConfig
	Cache      CacheConfig
	Semantic   SemanticConfig
	Classifier ClassifierConfig
	Queue      QueueConfig
	Telemetry  TelemetryConfig
}

type ModelConfig struct {
	// Provider is the primary chat-model provider: openai | anthropic | ollama.
	Provider string
	Model    string
	APIKey   string
	Endpoint string
	// FallbackProvider is tried when the primary fails; empty disables failover.
	// The fallback carries its own key and endpoint; the primary's credentials
	// are never reused across vendors.
	FallbackProvider string
	FallbackModel    string
	FallbackAPIKey   string
	FallbackEndpoint string
	MaxRetries       int
}

type EmbeddingConfig struct {
	// Provider is the embedding backend: openai | ollama.
	Provider string
	Model    string
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

type CacheConfig struct {
	Enabled       bool
	TTL           time.Duration
	SweepInterval time.Duration
}

type SemanticConfig struct {
	TopK     int
	MinScore float64
	// PgvectorURL selects the pgvector index backend when set; otherwise the
	// in-memory brute-force index is used.
	PgvectorURL string
	Dimensions  int
	Timeout     time.Duration
}

type ClassifierConfig struct {
	Timeout time.Duration
}

type QueueConfig struct {
	Workers int
	// Tiers is the ordered list of named priority levels, soonest first.
	Tiers []string
	// Retention is how long finished job statuses stay queryable.
	Retention time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("TILLER_PORT", 8080),
		Version: envStr("TILLER_VERSION", "0.2.0"),
		Model: ModelConfig{
			Provider:         envStr("TILLER_MODEL_PROVIDER", "openai"),
			Model:            envStr("TILLER_MODEL_NAME", "gpt-4o-mini"),
			APIKey:           envStr("TILLER_MODEL_API_KEY", ""),
			Endpoint:         envStr("TILLER_MODEL_ENDPOINT", ""),
			FallbackProvider: envStr("TILLER_MODEL_FALLBACK_PROVIDER", ""),
			FallbackModel:    envStr("TILLER_MODEL_FALLBACK_NAME", ""),
			FallbackAPIKey:   envStr("TILLER_MODEL_FALLBACK_API_KEY", ""),
			FallbackEndpoint: envStr("TILLER_MODEL_FALLBACK_ENDPOINT", ""),
			MaxRetries:       envInt("TILLER_MODEL_MAX_RETRIES", 2),
		},
		Embedding: EmbeddingConfig{
			Provider: envStr("TILLER_EMBEDDING_PROVIDER", "openai"),
			Model:    envStr("TILLER_EMBEDDING_MODEL", "text-embedding-3-small"),
			APIKey:   envStr("TILLER_EMBEDDING_API_KEY", ""),
			Endpoint: envStr("TILLER_EMBEDDING_ENDPOINT", ""),
			Timeout:  envDurMS("TILLER_EMBEDDING_TIMEOUT_MS", 10*time.Second),
		},
		Cache: CacheConfig{
			Enabled:       envBool("TILLER_CACHE_ENABLED", true),
			TTL:           envDurSec("TILLER_CACHE_TTL_SECONDS", 6*time.Hour),
			SweepInterval: envDurSec("TILLER_CACHE_SWEEP_SECONDS", 10*time.Minute),
		},
		Semantic: SemanticConfig{
			TopK:        envInt("TILLER_SEMANTIC_TOP_K", 5),
			MinScore:    envFloat("TILLER_SEMANTIC_MIN_SCORE", 0.35),
			PgvectorURL: envStr("TILLER_PGVECTOR_URL", ""),
			Dimensions:  envInt("TILLER_SEMANTIC_DIMENSIONS", 1536),
			Timeout:     envDurMS("TILLER_SEMANTIC_TIMEOUT_MS", 5*time.Second),
		},
		Classifier: ClassifierConfig{
			Timeout: envDurMS("TILLER_CLASSIFIER_TIMEOUT_MS", 8*time.Second),
		},
		Queue: QueueConfig{
			Workers:   envInt("TILLER_QUEUE_WORKERS", 2),
			Tiers:     envList("TILLER_PRIORITY_TIERS", []string{"interactive", "bulk_import", "reprocess", "background"}),
			Retention: envDurSec("TILLER_JOB_RETENTION_SECONDS", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "tiller-control-plane"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurSec(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func envDurMS(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

package llm

import (
	"testing"

	"github.com/tillerhq/tiller/internal/config"
)

func TestNewRouterWithoutFallback(t *testing.T) {
	r := NewRouter(config.ModelConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k1"})
	if len(r.providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(r.providers))
	}
	if r.providers[0].Kind != "openai" || r.providers[0].APIKey != "k1" {
		t.Errorf("primary = %+v, want the configured provider", r.providers[0])
	}
}

func TestNewRouterFallbackKeepsOwnCredentials(t *testing.T) {
	r := NewRouter(config.ModelConfig{
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		APIKey:           "openai-key",
		Endpoint:         "https://api.openai.example/v1",
		FallbackProvider: "ollama",
		FallbackEndpoint: "http://localhost:11434",
	})
	if len(r.providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(r.providers))
	}

	fb := r.providers[1]
	if fb.Kind != "ollama" {
		t.Errorf("fallback Kind = %q, want ollama", fb.Kind)
	}
	if fb.Endpoint != "http://localhost:11434" {
		t.Errorf("fallback Endpoint = %q, want the configured fallback endpoint", fb.Endpoint)
	}
	if fb.APIKey == "openai-key" {
		t.Error("fallback reused the primary provider's API key")
	}
	if fb.Model != "gpt-4o-mini" {
		t.Errorf("fallback Model = %q, want the primary's model when unset", fb.Model)
	}
}

func TestNewRouterFallbackModelOverride(t *testing.T) {
	r := NewRouter(config.ModelConfig{
		Provider:         "openai",
		Model:            "gpt-4o-mini",
		FallbackProvider: "anthropic",
		FallbackModel:    "claude-3-5-haiku-latest",
		FallbackAPIKey:   "anthropic-key",
	})
	fb := r.providers[1]
	if fb.Model != "claude-3-5-haiku-latest" || fb.APIKey != "anthropic-key" {
		t.Errorf("fallback = %+v, want its own model and key", fb)
	}
}

// Package llm provides the chat-model client used by the intent classifier
// and the agents.
//
// The client tries the primary provider first and fails over to the
// configured fallback. Transient failures (timeouts, 5xx) are retried a
// bounded number of times with exponential backoff before failover.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/pkg/models"
)

// Client is the chat-model call boundary. Tests substitute fakes.
type Client interface {
	// Complete sends a chat completion request and returns the model output.
	Complete(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error)
}

// Provider is one configured model backend.
type Provider struct {
	Kind     string // openai | anthropic | ollama
	Model    string
	APIKey   string
	Endpoint string
}

// Router is the default Client: ordered provider fallback with bounded
// retries per provider and rolling latency tracking.
type Router struct {
	providers  []Provider
	client     *http.Client
	maxRetries int

	latencyMu sync.RWMutex
	latencies map[string]int64 // provider kind → EMA ms
}

// NewRouter builds a Router from model configuration. The fallback provider
// is appended after the primary when configured.
func NewRouter(cfg config.ModelConfig) *Router {
	providers := []Provider{{
		Kind:     cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
	}}
	if cfg.FallbackProvider != "" {
		fbModel := cfg.FallbackModel
		if fbModel == "" {
			fbModel = cfg.Model
		}
		providers = append(providers, Provider{
			Kind:     cfg.FallbackProvider,
			Model:    fbModel,
			APIKey:   cfg.FallbackAPIKey,
			Endpoint: cfg.FallbackEndpoint,
		})
	}
	return &Router{
		providers:  providers,
		client:     &http.Client{Timeout: 120 * time.Second},
		maxRetries: cfg.MaxRetries,
		latencies:  make(map[string]int64),
	}
}

// Complete tries each provider in order. A provider is retried with
// exponential backoff before moving on to the next.
func (r *Router) Complete(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error) {
	var lastErr error
	for i := range r.providers {
		p := &r.providers[i]

		comp, err := r.callWithRetry(ctx, p, messages)
		if err != nil {
			log.Warn().
				Str("provider", p.Kind).
				Str("model", p.Model).
				Err(err).
				Msg("Provider call failed, trying next")
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return comp, nil
	}
	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// Latency returns the rolling average latency for a provider kind in ms,
// or 0 when the provider has not been called yet.
func (r *Router) Latency(kind string) int64 {
	r.latencyMu.RLock()
	defer r.latencyMu.RUnlock()
	return r.latencies[kind]
}

func (r *Router) callWithRetry(ctx context.Context, p *Provider, messages []models.ChatMessage) (*models.Completion, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.maxRetries)),
		ctx,
	)

	var comp *models.Completion
	op := func() error {
		c, err := r.callProvider(ctx, p, messages)
		if err != nil {
			return err
		}
		comp = c
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return comp, nil
}

func (r *Router) callProvider(ctx context.Context, p *Provider, messages []models.ChatMessage) (*models.Completion, error) {
	start := time.Now()

	var comp *models.Completion
	var err error
	switch p.Kind {
	case "anthropic":
		comp, err = r.callAnthropic(ctx, p, messages)
	case "ollama":
		comp, err = r.callOllama(ctx, p, messages)
	default:
		// openai and any OpenAI-compatible endpoint
		comp, err = r.callOpenAI(ctx, p, messages)
	}
	if err != nil {
		return nil, err
	}

	latencyMs := time.Since(start).Milliseconds()
	comp.LatencyMs = latencyMs
	comp.Provider = p.Kind

	r.latencyMu.Lock()
	prev := r.latencies[p.Kind]
	if prev == 0 {
		r.latencies[p.Kind] = latencyMs
	} else {
		// Exponential moving average
		r.latencies[p.Kind] = (prev*7 + latencyMs*3) / 10
	}
	r.latencyMu.Unlock()

	return comp, nil
}

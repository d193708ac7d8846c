// Package server provides the public entry point for initializing the
// Tiller control plane.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/agents"
	"github.com/tillerhq/tiller/internal/api"
	"github.com/tillerhq/tiller/internal/api/handlers"
	"github.com/tillerhq/tiller/internal/catalog"
	"github.com/tillerhq/tiller/internal/classifier"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/conversation"
	"github.com/tillerhq/tiller/internal/embedcache"
	"github.com/tillerhq/tiller/internal/embeddings"
	"github.com/tillerhq/tiller/internal/executor"
	"github.com/tillerhq/tiller/internal/guardrails"
	"github.com/tillerhq/tiller/internal/jobs"
	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/internal/provision"
	"github.com/tillerhq/tiller/internal/semindex"
	"github.com/tillerhq/tiller/internal/telemetry"
)

// Server holds the initialized Tiller control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Port is the port the server should listen on.
	Port int

	// Queue feeds the background worker pool.
	Queue *jobs.Queue

	// Pool drains the queue; started by New.
	Pool *jobs.Pool

	// ShutdownFunc should be called on graceful shutdown to flush telemetry
	// and stop the workers.
	ShutdownFunc func(context.Context) error
}

// New initializes all control plane components from the environment and
// returns a ready Server with workers running.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the control plane with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	cache := embedcache.New(cfg.Cache)
	cache.Start(ctx)

	store := conversation.NewStore()
	cat := catalog.New()

	// The semantic index is best-effort: if the embedding backend or the
	// pgvector connection is unavailable the planner runs keyword-only.
	index := buildIndex(ctx, cfg, cache, cat)

	client := llm.NewRouter(cfg.Model)
	registry := agents.NewRegistry(client)

	orch := executor.New(
		store,
		classifier.New(client, cfg.Classifier),
		guardrails.NewEngine(guardrails.DefaultRules()),
		provision.New(cat, searcherOrNil(index), cfg.Semantic),
		registry,
		cat,
	)

	queue := jobs.NewQueue()
	pool := jobs.NewPool(queue, orch, cfg.Queue.Workers)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool.Start(workerCtx)
	queue.StartJanitor(workerCtx, cfg.Queue.Retention, time.Minute)

	h := &handlers.Handlers{
		Cfg:          cfg,
		Orchestrator: orch,
		Store:        store,
		Catalog:      cat,
		Index:        index,
		Cache:        cache,
		Queue:        queue,
		Pool:         pool,
	}

	shutdown := func(ctx context.Context) error {
		queue.Close()
		stopWorkers()
		pool.Wait()
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Port:         cfg.Port,
		Queue:        queue,
		Pool:         pool,
		ShutdownFunc: shutdown,
	}, nil
}

// buildIndex wires the semantic tool index, seeding it with the built-in
// catalog. A missing embedding backend disables the index entirely.
func buildIndex(ctx context.Context, cfg *config.Config, cache *embedcache.Cache, cat *catalog.Catalog) *semindex.Index {
	embedder, err := embeddings.New(cfg.Embedding)
	if err != nil {
		log.Warn().Err(err).Msg("Embedding backend unavailable, semantic tool search disabled")
		return nil
	}

	var driver semindex.Driver
	if cfg.Semantic.PgvectorURL != "" {
		pg, err := semindex.NewPgvectorDriver(ctx, cfg.Semantic.PgvectorURL, cfg.Semantic.Dimensions)
		if err != nil {
			log.Warn().Err(err).Msg("pgvector unavailable, falling back to in-memory tool index")
		} else {
			driver = pg
		}
	}
	if driver == nil {
		driver = semindex.NewEmbeddedDriver()
	}

	index := semindex.New(driver, embedder, cache, cfg.Semantic)

	seeded := 0
	for _, desc := range cat.List() {
		if err := index.IndexTool(ctx, desc); err != nil {
			log.Warn().Str("tool", desc.Name).Err(err).Msg("Failed to index built-in tool")
			continue
		}
		seeded++
	}
	log.Info().Int("tools", seeded).Str("driver", driver.Kind()).Msg("Semantic tool index ready")
	return index
}

// searcherOrNil avoids handing the planner a typed-nil interface.
func searcherOrNil(index *semindex.Index) provision.Searcher {
	if index == nil {
		return nil
	}
	return index
}

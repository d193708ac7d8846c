// Package semindex implements vector-similarity search over embedded tool
// descriptors.
//
// Two drivers ship: an in-memory brute-force index for development and
// small catalogs, and a pgvector-backed index for production. Query vectors
// come from the embedding cache when possible and are computed and cached
// on miss.
//
// Search is best-effort by contract: any failure of the embedding or index
// backend yields an empty result, never an error. Callers always have a
// non-semantic fallback (keyword categories and each agent's core set).
package semindex

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/embedcache"
	"github.com/tillerhq/tiller/internal/embeddings"
	"github.com/tillerhq/tiller/pkg/models"
)

// ToolVector is one indexed tool descriptor.
type ToolVector struct {
	Name   string
	Pack   models.CapabilityPack
	Vector []float64
}

// Driver is the index storage backend.
type Driver interface {
	// Kind returns the driver identifier (embedded | pgvector).
	Kind() string

	// Upsert stores or replaces a tool vector.
	Upsert(ctx context.Context, tv ToolVector) error

	// Search returns tools with similarity >= minScore against the query
	// vector, sorted by score descending then name ascending, limited to
	// topK. The optional pack narrows candidates to one capability pack.
	Search(ctx context.Context, vector []float64, topK int, minScore float64, pack models.CapabilityPack) ([]models.ToolMatch, error)

	// Count returns the number of indexed tools.
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Index is the semantic tool index: embedding + cache + driver.
type Index struct {
	driver   Driver
	embedder embeddings.Embedder
	cache    *embedcache.Cache
	topK     int
	minScore float64
	timeout  time.Duration
}

// New creates a semantic tool index over the given driver.
func New(driver Driver, embedder embeddings.Embedder, cache *embedcache.Cache, cfg config.SemanticConfig) *Index {
	return &Index{
		driver:   driver,
		embedder: embedder,
		cache:    cache,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		timeout:  cfg.Timeout,
	}
}

// TopK returns the configured default result limit.
func (ix *Index) TopK() int { return ix.topK }

// MinScore returns the configured similarity floor.
func (ix *Index) MinScore() float64 { return ix.minScore }

// IndexTool embeds one descriptor and upserts it into the driver.
// Used by the catalog sync path, where failures are reported per tool.
func (ix *Index) IndexTool(ctx context.Context, desc models.ToolDescriptor) error {
	vec, err := ix.embed(ctx, descriptorText(desc))
	if err != nil {
		return err
	}
	return ix.driver.Upsert(ctx, ToolVector{
		Name:   desc.Name,
		Pack:   desc.Pack,
		Vector: vec,
	})
}

// Search returns ranked tool matches for a query. topK <= 0 and
// minScore < 0 fall back to the configured defaults. Failures degrade to an
// empty result.
func (ix *Index) Search(ctx context.Context, query string, topK int, minScore float64, pack models.CapabilityPack) []models.ToolMatch {
	if topK <= 0 {
		topK = ix.topK
	}
	if minScore < 0 {
		minScore = ix.minScore
	}

	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	vec, err := ix.embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("Semantic search: embedding failed, returning empty result")
		return nil
	}

	matches, err := ix.driver.Search(ctx, vec, topK, minScore, pack)
	if err != nil {
		log.Warn().Err(err).Str("driver", ix.driver.Kind()).Msg("Semantic search: index failed, returning empty result")
		return nil
	}
	return matches
}

// Count returns the number of indexed tools, 0 on backend failure.
func (ix *Index) Count(ctx context.Context) int {
	n, err := ix.driver.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// embed returns the vector for a text, consulting the cache first and
// populating it on miss.
func (ix *Index) embed(ctx context.Context, text string) ([]float64, error) {
	hash := embedcache.HashText(text)
	if vec, ok := ix.cache.Get(hash); ok {
		return vec, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errEmptyEmbedding
	}

	ix.cache.Put(hash, vecs[0])
	return vecs[0], nil
}

var errEmptyEmbedding = errEmpty{}

type errEmpty struct{}

func (errEmpty) Error() string { return "embedder returned empty vector" }

// descriptorText is the canonical text embedded for a tool descriptor.
func descriptorText(d models.ToolDescriptor) string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteString(": ")
	sb.WriteString(d.Description)
	if len(d.Keywords) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(d.Keywords, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

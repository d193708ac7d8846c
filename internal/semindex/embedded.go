package semindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/tillerhq/tiller/pkg/models"
)

// EmbeddedDriver is an in-memory brute-force cosine similarity index.
// Fine for tool catalogs, which stay small; production deployments with
// large catalogs should use the pgvector driver.
type EmbeddedDriver struct {
	mu    sync.RWMutex
	tools map[string]ToolVector
}

// NewEmbeddedDriver creates an in-memory index driver.
func NewEmbeddedDriver() *EmbeddedDriver {
	return &EmbeddedDriver{tools: make(map[string]ToolVector)}
}

func (d *EmbeddedDriver) Kind() string { return "embedded" }

func (d *EmbeddedDriver) Upsert(_ context.Context, tv ToolVector) error {
	cp := tv
	cp.Vector = make([]float64, len(tv.Vector))
	copy(cp.Vector, tv.Vector)

	d.mu.Lock()
	d.tools[cp.Name] = cp
	d.mu.Unlock()
	return nil
}

func (d *EmbeddedDriver) Search(_ context.Context, vector []float64, topK int, minScore float64, pack models.CapabilityPack) ([]models.ToolMatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []models.ToolMatch
	for _, tv := range d.tools {
		if pack != "" && tv.Pack != pack {
			continue
		}
		if len(tv.Vector) != len(vector) {
			continue
		}
		score := cosineSimilarity(vector, tv.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, models.ToolMatch{Name: tv.Name, Score: score})
	}

	// Score descending; equal scores break ties by name for stable output.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (d *EmbeddedDriver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tools), nil
}

func (d *EmbeddedDriver) HealthCheck(_ context.Context) error {
	return nil // always healthy, it's in-memory
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package catalog holds the static registry of tool descriptors.
//
// Descriptors are loaded once at startup and are immutable afterwards
// except through the batch sync endpoint, which re-indexes the semantic
// tool index as a side effect. The catalog also owns the two static tables
// the provisioning planner consults: per-agent core tool sets and the
// category → tool mapping for keyword-matched conditional tools.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/keywords"
	"github.com/tillerhq/tiller/pkg/models"
)

// Indexer receives descriptors for semantic indexing during sync.
// Implemented by the semantic tool index.
type Indexer interface {
	IndexTool(ctx context.Context, desc models.ToolDescriptor) error
}

// Catalog is the thread-safe tool descriptor registry.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]models.ToolDescriptor
}

// New creates a catalog pre-populated with the built-in tool set.
func New() *Catalog {
	c := &Catalog{tools: make(map[string]models.ToolDescriptor)}
	for _, d := range builtinTools {
		c.tools[d.Name] = d
	}
	log.Info().Int("tools", len(c.tools)).Msg("Tool catalog loaded")
	return c
}

// Get returns a descriptor by name.
func (c *Catalog) Get(name string) (models.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []models.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(c.tools))
	for _, d := range c.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// Sync batch-upserts descriptors and re-indexes each one in the semantic
// index. Descriptors that fail validation or indexing are reported in the
// result; the rest are applied.
func (c *Catalog) Sync(ctx context.Context, descriptors []models.ToolDescriptor, idx Indexer) models.SyncResult {
	result := models.SyncResult{Failures: []models.SyncFailure{}}

	for _, d := range descriptors {
		if d.Name == "" {
			result.Failures = append(result.Failures, models.SyncFailure{Name: d.Name, Error: "tool name is required"})
			continue
		}
		if d.Description == "" {
			result.Failures = append(result.Failures, models.SyncFailure{Name: d.Name, Error: "tool description is required"})
			continue
		}

		if idx != nil {
			if err := idx.IndexTool(ctx, d); err != nil {
				result.Failures = append(result.Failures, models.SyncFailure{
					Name:  d.Name,
					Error: fmt.Sprintf("index: %v", err),
				})
				continue
			}
		}

		c.mu.Lock()
		c.tools[d.Name] = d
		c.mu.Unlock()
		result.Count++
	}

	result.Success = len(result.Failures) == 0
	log.Info().
		Int("upserted", result.Count).
		Int("failed", len(result.Failures)).
		Msg("Tool catalog sync")
	return result
}

// CoreTools returns the fixed tool set an agent always receives. The result
// is a copy; it is never empty for a registered agent.
func CoreTools(agent models.AgentKind) []string {
	core, ok := coreTools[agent]
	if !ok {
		core = coreTools[models.DefaultAgent]
	}
	out := make([]string, len(core))
	copy(out, core)
	return out
}

// CategoryTools maps a detected keyword category to its conditional tools.
func CategoryTools(cat keywords.Category) []string {
	tools := categoryTools[cat]
	out := make([]string, len(tools))
	copy(out, tools)
	return out
}

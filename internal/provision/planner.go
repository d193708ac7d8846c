// Package provision builds per-request tool plans.
//
// A plan is the union of three layers: the agent's fixed core set, the
// conditional tools triggered by keyword categories in the query, and
// semantic matches from the vector index. The semantic layer is best-effort;
// when it yields nothing the plan still carries the core set, so an agent is
// never provisioned empty.
package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/catalog"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/keywords"
	"github.com/tillerhq/tiller/pkg/models"
)

// Searcher is the semantic tool lookup. Implemented by the semantic index;
// a nil Searcher disables the semantic layer.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, minScore float64, pack models.CapabilityPack) []models.ToolMatch
}

// Planner resolves tool plans against the catalog and semantic index.
type Planner struct {
	catalog  *catalog.Catalog
	searcher Searcher
	topK     int
	minScore float64
}

// New creates a planner. searcher may be nil.
func New(cat *catalog.Catalog, searcher Searcher, cfg config.SemanticConfig) *Planner {
	return &Planner{
		catalog:  cat,
		searcher: searcher,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
	}
}

// Plan builds the tool plan for one request. It never fails and never
// returns a plan without the agent's core tools.
func (p *Planner) Plan(ctx context.Context, agent models.AgentKind, query string) *models.ToolProvisioningPlan {
	plan := &models.ToolProvisioningPlan{
		Agent:     agent,
		CoreTools: catalog.CoreTools(agent),
	}

	categories := keywords.DetectCategories(query)
	seen := make(map[string]struct{})
	for _, t := range plan.CoreTools {
		seen[t] = struct{}{}
	}
	for _, cat := range categories {
		for _, t := range catalog.CategoryTools(cat) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			plan.ConditionalTools = append(plan.ConditionalTools, t)
		}
	}

	if p.searcher != nil {
		for _, m := range p.searcher.Search(ctx, query, p.topK, p.minScore, "") {
			if _, dup := seen[m.Name]; dup {
				continue
			}
			// The index can lag behind catalog deletions; only plan tools
			// that still exist.
			if _, ok := p.catalog.Get(m.Name); !ok {
				continue
			}
			seen[m.Name] = struct{}{}
			plan.SemanticTools = append(plan.SemanticTools, m)
		}
	}

	plan.Rationale = rationale(agent, categories, plan)
	log.Debug().
		Str("agent", string(agent)).
		Int("core", len(plan.CoreTools)).
		Int("conditional", len(plan.ConditionalTools)).
		Int("semantic", len(plan.SemanticTools)).
		Msg("Tool plan resolved")
	return plan
}

// rationale renders a human-readable account of why each layer contributed.
func rationale(agent models.AgentKind, categories []keywords.Category, plan *models.ToolProvisioningPlan) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("core set for agent %q (%d tools)", agent, len(plan.CoreTools)))

	if len(plan.ConditionalTools) > 0 {
		names := make([]string, len(categories))
		for i, c := range categories {
			names[i] = string(c)
		}
		parts = append(parts, fmt.Sprintf("keyword categories [%s] added %d conditional tools",
			strings.Join(names, ", "), len(plan.ConditionalTools)))
	}
	if len(plan.SemanticTools) > 0 {
		parts = append(parts, fmt.Sprintf("semantic search added %d matches (best %.2f)",
			len(plan.SemanticTools), plan.SemanticTools[0].Score))
	} else {
		parts = append(parts, "no semantic matches")
	}
	return strings.Join(parts, "; ")
}

package agents

import (
	"context"

	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

const researchPrompt = `You are a research assistant. Use the web tools in your
tool list to look things up rather than relying on stale knowledge. Synthesize
across sources and cite what you used.`

// ResearchAgent handles web lookups and multi-source synthesis.
type ResearchAgent struct {
	client llm.Client
}

func (a *ResearchAgent) Kind() models.AgentKind { return models.AgentResearch }

func (a *ResearchAgent) Execute(ctx context.Context, in Input, sink Sink) (*Output, error) {
	response, err := complete(ctx, a.client, buildMessages(researchPrompt, in), sink)
	if err != nil {
		return nil, err
	}
	return &Output{
		Response: response,
		ContextUpdates: map[string]string{
			"research.last_query":   firstLine(in.Query),
			"research.last_summary": firstLine(response),
		},
	}, nil
}

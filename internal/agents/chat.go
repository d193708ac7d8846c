package agents

import (
	"context"

	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

const chatPrompt = `You are a helpful conversational assistant. Answer directly
and concisely. When the shared context from other agents is relevant, use it
instead of guessing.`

// ChatAgent is the default conversational agent and the routing fallback.
type ChatAgent struct {
	client llm.Client
}

func (a *ChatAgent) Kind() models.AgentKind { return models.AgentChat }

func (a *ChatAgent) Execute(ctx context.Context, in Input, sink Sink) (*Output, error) {
	response, err := complete(ctx, a.client, buildMessages(chatPrompt, in), sink)
	if err != nil {
		return nil, err
	}
	return &Output{Response: response}, nil
}

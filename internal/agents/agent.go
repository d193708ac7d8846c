// Package agents implements the specialized agents the control plane routes
// to. Each agent turns one user query into streamed content plus namespaced
// shared-context updates; the orchestrator owns state commits and event
// sequencing.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

// historyWindow is how many trailing turns each agent sees.
const historyWindow = 10

// Input is everything an agent gets for one turn.
type Input struct {
	Query         string
	State         *models.ConversationState
	Plan          *models.ToolProvisioningPlan
	EditorContext string
}

// Output is what an agent hands back to the orchestrator.
type Output struct {
	Response string
	// ContextUpdates are merged into the conversation's shared context.
	// Keys must be namespaced by the producing agent ("notes.last_topic").
	ContextUpdates map[string]string
}

// Sink receives streamed fragments while an agent runs.
type Sink interface {
	Content(msg string) error
}

// Agent is one specialized request handler.
type Agent interface {
	Kind() models.AgentKind
	Execute(ctx context.Context, in Input, sink Sink) (*Output, error)
}

// Registry maps agent kinds to implementations.
type Registry struct {
	agents map[models.AgentKind]Agent
}

// NewRegistry builds the full agent set over one model client.
func NewRegistry(client llm.Client) *Registry {
	r := &Registry{agents: make(map[models.AgentKind]Agent)}
	for _, a := range []Agent{
		&ChatAgent{client: client},
		&NotesAgent{client: client},
		&ResearchAgent{client: client},
		&EditorAgent{client: client},
	} {
		r.agents[a.Kind()] = a
	}
	return r
}

// Get returns the agent for a kind, falling back to the default agent.
func (r *Registry) Get(kind models.AgentKind) Agent {
	if a, ok := r.agents[kind]; ok {
		return a
	}
	return r.agents[models.DefaultAgent]
}

// ── Shared helpers ───────────────────────────────────────────

// buildMessages assembles system prompt, trailing history, shared context,
// and the current query into a model call.
func buildMessages(systemPrompt string, in Input) []models.ChatMessage {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	if in.Plan != nil {
		tools := in.Plan.Union()
		if len(tools) > 0 {
			sb.WriteString("\n\nTools available for this request: ")
			sb.WriteString(strings.Join(tools, ", "))
			sb.WriteString(".")
		}
	}
	if in.State != nil && len(in.State.SharedContext) > 0 {
		sb.WriteString("\n\nShared context from earlier agents:\n")
		for k, v := range in.State.SharedContext {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, v))
		}
	}

	messages := []models.ChatMessage{{Role: "system", Content: sb.String()}}

	if in.State != nil {
		start := len(in.State.Messages) - historyWindow
		if start < 0 {
			start = 0
		}
		for _, m := range in.State.Messages[start:] {
			messages = append(messages, models.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}

	messages = append(messages, models.ChatMessage{Role: "user", Content: in.Query})
	return messages
}

// complete runs one model call and streams the full response through the
// sink before returning it.
func complete(ctx context.Context, client llm.Client, messages []models.ChatMessage, sink Sink) (string, error) {
	comp, err := client.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	if err := sink.Content(comp.Content); err != nil {
		return "", err
	}
	return comp.Content, nil
}

// firstLine extracts a short summary of the response for shared context.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

package agents

import (
	"context"

	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

const editorPrompt = `You are an in-place document editor. The user has a
document open; edit exactly what they ask and nothing else. Return the revised
text, not commentary about it.`

// EditorAgent modifies an open document in place. Conversations routed here
// are usually locked to it for the whole editing session.
type EditorAgent struct {
	client llm.Client
}

func (a *EditorAgent) Kind() models.AgentKind { return models.AgentEditor }

func (a *EditorAgent) Execute(ctx context.Context, in Input, sink Sink) (*Output, error) {
	prompt := editorPrompt
	if in.EditorContext != "" {
		prompt += "\n\nThe open document:\n" + in.EditorContext
	}
	response, err := complete(ctx, a.client, buildMessages(prompt, in), sink)
	if err != nil {
		return nil, err
	}
	return &Output{
		Response: response,
		ContextUpdates: map[string]string{
			"editor.last_edit": firstLine(in.Query),
		},
	}, nil
}

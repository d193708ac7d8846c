package agents

import (
	"context"

	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

const notesPrompt = `You are a note-keeping assistant. You capture, find, and
update the user's notes and documents. Prefer the note tools in your tool list
over answering from memory. Quote note titles exactly.`

// NotesAgent handles document and note capture, retrieval, and edits.
type NotesAgent struct {
	client llm.Client
}

func (a *NotesAgent) Kind() models.AgentKind { return models.AgentNotes }

func (a *NotesAgent) Execute(ctx context.Context, in Input, sink Sink) (*Output, error) {
	response, err := complete(ctx, a.client, buildMessages(notesPrompt, in), sink)
	if err != nil {
		return nil, err
	}
	return &Output{
		Response: response,
		ContextUpdates: map[string]string{
			"notes.last_topic": firstLine(in.Query),
		},
	}, nil
}

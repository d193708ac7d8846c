package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/tillerhq/tiller/pkg/models"
)

type fakeClient struct {
	content string
	gotMsgs []models.ChatMessage
}

func (f *fakeClient) Complete(_ context.Context, msgs []models.ChatMessage) (*models.Completion, error) {
	f.gotMsgs = msgs
	return &models.Completion{Content: f.content}, nil
}

type collectSink struct {
	fragments []string
}

func (c *collectSink) Content(msg string) error {
	c.fragments = append(c.fragments, msg)
	return nil
}

func TestRegistryFallsBackToDefaultAgent(t *testing.T) {
	r := NewRegistry(&fakeClient{})
	a := r.Get(models.AgentKind("no-such-agent"))
	if a.Kind() != models.DefaultAgent {
		t.Errorf("Get(unknown).Kind() = %q, want the default agent", a.Kind())
	}
}

func TestRegistryCoversAllKnownAgents(t *testing.T) {
	r := NewRegistry(&fakeClient{})
	for _, kind := range models.KnownAgents() {
		if got := r.Get(kind).Kind(); got != kind {
			t.Errorf("Get(%q).Kind() = %q", kind, got)
		}
	}
}

func TestExecuteStreamsThroughSink(t *testing.T) {
	client := &fakeClient{content: "the answer"}
	sink := &collectSink{}

	out, err := (&ChatAgent{client: client}).Execute(context.Background(), Input{Query: "q"}, sink)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Response != "the answer" {
		t.Errorf("Response = %q", out.Response)
	}
	if len(sink.fragments) != 1 || sink.fragments[0] != "the answer" {
		t.Errorf("sink got %v", sink.fragments)
	}
}

func TestNotesAgentNamespacesContextUpdates(t *testing.T) {
	client := &fakeClient{content: "saved"}
	out, err := (&NotesAgent{client: client}).Execute(context.Background(), Input{Query: "capture my standup notes"}, &collectSink{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for k := range out.ContextUpdates {
		if !strings.HasPrefix(k, "notes.") {
			t.Errorf("context key %q not namespaced by agent", k)
		}
	}
}

func TestBuildMessagesIncludesPlanAndContext(t *testing.T) {
	in := Input{
		Query: "what did we decide?",
		State: &models.ConversationState{
			Messages: []models.ChatMessage{
				{Role: "user", Content: "earlier question"},
				{Role: "assistant", Content: "earlier answer"},
			},
			SharedContext: map[string]string{"research.last_summary": "fusion timeline"},
		},
		Plan: &models.ToolProvisioningPlan{CoreTools: []string{"context_recall", "note_search"}},
	}

	msgs := buildMessages("base prompt", in)
	if msgs[0].Role != "system" {
		t.Fatalf("first message role = %q, want system", msgs[0].Role)
	}
	system := msgs[0].Content
	if !strings.Contains(system, "note_search") {
		t.Error("system prompt missing planned tools")
	}
	if !strings.Contains(system, "research.last_summary") {
		t.Error("system prompt missing shared context")
	}
	if msgs[len(msgs)-1].Content != "what did we decide?" {
		t.Error("query not the final message")
	}
	if len(msgs) != 4 {
		t.Errorf("got %d messages, want system + 2 history + query", len(msgs))
	}
}

func TestBuildMessagesTruncatesHistory(t *testing.T) {
	state := &models.ConversationState{}
	for i := 0; i < 30; i++ {
		state.Messages = append(state.Messages, models.ChatMessage{Role: "user", Content: "m"})
	}
	msgs := buildMessages("p", Input{Query: "q", State: state})
	if len(msgs) != historyWindow+2 {
		t.Errorf("got %d messages, want window %d plus system and query", len(msgs), historyWindow)
	}
}

func TestEditorAgentInjectsDocument(t *testing.T) {
	client := &fakeClient{content: "revised"}
	_, err := (&EditorAgent{client: client}).Execute(context.Background(), Input{
		Query:         "fix the typo",
		EditorContext: "Teh quick brown fox",
	}, &collectSink{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(client.gotMsgs[0].Content, "Teh quick brown fox") {
		t.Error("editor system prompt missing the open document")
	}
}

package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tillerhq/tiller/internal/conversation"
	"github.com/tillerhq/tiller/pkg/models"
)

func newConv(t *testing.T, s *conversation.Store) *models.ConversationState {
	t.Helper()
	state, err := s.LoadOrCreate(context.Background(), models.ChatRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	return state
}

func appendMsg(t *testing.T, s *conversation.Store, convID, content string) *models.Checkpoint {
	t.Helper()
	cp, err := s.Commit(context.Background(), convID, func(st *models.ConversationState) {
		st.Messages = append(st.Messages, models.ChatMessage{Role: "user", Content: content})
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return cp
}

func TestLoadOrCreateNewConversation(t *testing.T) {
	s := conversation.NewStore()
	state := newConv(t, s)

	if state.ConversationID == "" {
		t.Error("new conversation has empty id")
	}
	if state.Messages == nil || state.SharedContext == nil {
		t.Error("new conversation should have initialized collections")
	}
}

func TestLoadOrCreateExisting(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)
	appendMsg(t, s, created.ConversationID, "hello")

	loaded, err := s.LoadOrCreate(context.Background(), models.ChatRequest{ConversationID: created.ConversationID})
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Errorf("loaded history = %v, want the appended message", loaded.Messages)
	}
}

func TestLoadOrCreateUnknownIDCreatesFresh(t *testing.T) {
	s := conversation.NewStore()
	state, err := s.LoadOrCreate(context.Background(), models.ChatRequest{ConversationID: "never-seen"})
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if state.ConversationID != "never-seen" {
		t.Errorf("ConversationID = %q, want the requested id", state.ConversationID)
	}
	if len(state.Messages) != 0 {
		t.Errorf("fresh conversation has %d messages", len(state.Messages))
	}
}

func TestGetReturnsDeepCopy(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)
	appendMsg(t, s, created.ConversationID, "original")

	got, err := s.Get(context.Background(), created.ConversationID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Messages[0].Content = "mutated"
	got.SharedContext["k"] = "v"

	again, _ := s.Get(context.Background(), created.ConversationID)
	if again.Messages[0].Content != "original" {
		t.Error("mutating a returned state leaked into the store")
	}
	if len(again.SharedContext) != 0 {
		t.Error("mutating a returned shared context leaked into the store")
	}
}

func TestGetNotFound(t *testing.T) {
	s := conversation.NewStore()
	_, err := s.Get(context.Background(), "nope")
	if _, ok := err.(*conversation.ErrNotFound); !ok {
		t.Errorf("Get() error = %v, want *ErrNotFound", err)
	}
}

func TestCommitProducesCheckpoint(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)

	cp := appendMsg(t, s, created.ConversationID, "turn one")
	if cp.ID == "" || cp.ConversationID != created.ConversationID {
		t.Fatalf("checkpoint = %+v", cp)
	}
	if len(cp.State.Messages) != 1 {
		t.Errorf("checkpoint captured %d messages, want 1", len(cp.State.Messages))
	}

	fetched, err := s.GetCheckpoint(context.Background(), cp.ID)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if fetched.ID != cp.ID {
		t.Errorf("GetCheckpoint() id = %q, want %q", fetched.ID, cp.ID)
	}
}

func TestCheckpointIsImmutableSnapshot(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)

	cp := appendMsg(t, s, created.ConversationID, "first")
	appendMsg(t, s, created.ConversationID, "second")

	fetched, err := s.GetCheckpoint(context.Background(), cp.ID)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if len(fetched.State.Messages) != 1 {
		t.Errorf("checkpoint has %d messages after later commits, want 1", len(fetched.State.Messages))
	}
}

func TestBranchDoesNotMutateOriginal(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)

	cp := appendMsg(t, s, created.ConversationID, "shared prefix")
	appendMsg(t, s, created.ConversationID, "original continues")

	branch, err := s.LoadOrCreate(context.Background(), models.ChatRequest{BaseCheckpointID: cp.ID})
	if err != nil {
		t.Fatalf("LoadOrCreate(branch) error = %v", err)
	}
	if branch.ConversationID == created.ConversationID {
		t.Fatal("branch reused the original conversation id")
	}
	if branch.BaseCheckpointID != cp.ID {
		t.Errorf("branch BaseCheckpointID = %q, want %q", branch.BaseCheckpointID, cp.ID)
	}
	if len(branch.Messages) != 1 {
		t.Errorf("branch starts with %d messages, want the checkpoint's 1", len(branch.Messages))
	}

	appendMsg(t, s, branch.ConversationID, "branch diverges")

	orig, _ := s.Get(context.Background(), created.ConversationID)
	if len(orig.Messages) != 2 {
		t.Errorf("original has %d messages after branch commit, want 2", len(orig.Messages))
	}
	for _, m := range orig.Messages {
		if m.Content == "branch diverges" {
			t.Error("branch commit leaked into the original conversation")
		}
	}
}

func TestBranchUnknownCheckpoint(t *testing.T) {
	s := conversation.NewStore()
	_, err := s.LoadOrCreate(context.Background(), models.ChatRequest{BaseCheckpointID: "missing"})
	if _, ok := err.(*conversation.ErrNotFound); !ok {
		t.Errorf("LoadOrCreate() error = %v, want *ErrNotFound", err)
	}
}

func TestConcurrentCommitsSameConversation(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			appendMsg(t, s, created.ConversationID, fmt.Sprintf("msg-%d", n))
		}(i)
	}
	wg.Wait()

	final, _ := s.Get(context.Background(), created.ConversationID)
	if len(final.Messages) != writers {
		t.Errorf("history has %d messages after %d concurrent commits, want %d (lost update)", len(final.Messages), writers, writers)
	}
}

func TestConcurrentCommitAndAgentPin(t *testing.T) {
	s := conversation.NewStore()

	for i := 0; i < 500; i++ {
		created := newConv(t, s)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			appendMsg(t, s, created.ConversationID, "turn")
		}()
		go func() {
			defer wg.Done()
			if _, err := s.LoadOrCreate(context.Background(), models.ChatRequest{
				ConversationID: created.ConversationID,
				LockedAgent:    models.AgentEditor,
			}); err != nil {
				t.Errorf("LoadOrCreate() error = %v", err)
			}
		}()
		wg.Wait()

		final, _ := s.Get(context.Background(), created.ConversationID)
		if final.LockedAgent != models.AgentEditor {
			t.Fatalf("iteration %d: agent pin lost to a concurrent commit", i)
		}
		if len(final.Messages) != 1 {
			t.Fatalf("iteration %d: history has %d messages after a concurrent pin, want 1", i, len(final.Messages))
		}
	}
}

func TestLockedAgentPersistsAcrossTurns(t *testing.T) {
	s := conversation.NewStore()
	created := newConv(t, s)

	_, err := s.LoadOrCreate(context.Background(), models.ChatRequest{
		ConversationID: created.ConversationID,
		LockedAgent:    models.AgentEditor,
	})
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}

	later, _ := s.LoadOrCreate(context.Background(), models.ChatRequest{ConversationID: created.ConversationID})
	if later.LockedAgent != models.AgentEditor {
		t.Errorf("LockedAgent = %q after relock, want editor", later.LockedAgent)
	}
}

// Package conversation provides the per-conversation state store:
// append-only message history, namespaced shared context, immutable
// checkpoints, and branch-from-checkpoint.
//
// Mutations to the same conversation are serialized through a per-key
// mutex; different conversations proceed fully concurrently. Reads return
// deep copies so callers never alias live state.
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/pkg/models"
)

// ErrNotFound is returned when a conversation or checkpoint id is unknown.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Store is the in-memory conversation state store.
type Store struct {
	mu          sync.RWMutex
	convs       map[string]*models.ConversationState
	checkpoints map[string]*models.Checkpoint

	// locks serializes writers per conversation id.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{
		convs:       make(map[string]*models.ConversationState),
		checkpoints: make(map[string]*models.Checkpoint),
		locks:       make(map[string]*sync.Mutex),
	}
}

// convLock returns the mutex serializing writers for one conversation.
func (s *Store) convLock(conversationID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

// Get returns a deep copy of a conversation's state.
func (s *Store) Get(_ context.Context, conversationID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.convs[conversationID]
	if !ok {
		return nil, &ErrNotFound{Kind: "conversation", ID: conversationID}
	}
	return state.Clone(), nil
}

// LoadOrCreate resolves the conversation state for an incoming request.
// A base checkpoint id branches a new conversation from that snapshot;
// otherwise the existing conversation is returned, or a fresh one created.
func (s *Store) LoadOrCreate(ctx context.Context, req models.ChatRequest) (*models.ConversationState, error) {
	if req.BaseCheckpointID != "" {
		return s.Branch(ctx, req.BaseCheckpointID, req)
	}

	if req.ConversationID != "" {
		state, err := s.Get(ctx, req.ConversationID)
		if err == nil {
			// A lock requested on this turn pins subsequent routing. The pin
			// is a write, so it goes through the conversation's writer lock
			// like any Commit.
			if req.LockedAgent != "" && req.LockedAgent != state.LockedAgent {
				return s.pin(req.ConversationID, req.LockedAgent)
			}
			return state, nil
		}
		if _, ok := err.(*ErrNotFound); !ok {
			return nil, err
		}
	}

	now := time.Now().UTC()
	state := &models.ConversationState{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		Messages:       []models.ChatMessage{},
		SharedContext:  map[string]string{},
		LockedAgent:    req.LockedAgent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if state.ConversationID == "" {
		state.ConversationID = uuid.NewString()
	}
	if err := s.put(state); err != nil {
		return nil, err
	}
	log.Debug().Str("conversation", state.ConversationID).Msg("Conversation created")
	return state.Clone(), nil
}

// Branch creates a new conversation whose history is the snapshot at the
// given checkpoint. The original conversation is never touched.
func (s *Store) Branch(_ context.Context, baseCheckpointID string, req models.ChatRequest) (*models.ConversationState, error) {
	s.mu.RLock()
	cp, ok := s.checkpoints[baseCheckpointID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "checkpoint", ID: baseCheckpointID}
	}

	now := time.Now().UTC()
	branched := cp.State.Clone()
	branched.ConversationID = uuid.NewString()
	branched.BaseCheckpointID = baseCheckpointID
	branched.IsComplete = false
	branched.CreatedAt = now
	branched.UpdatedAt = now
	if req.UserID != "" {
		branched.UserID = req.UserID
	}
	if req.SessionID != "" {
		branched.SessionID = req.SessionID
	}
	if req.LockedAgent != "" {
		branched.LockedAgent = req.LockedAgent
	}

	if err := s.put(branched); err != nil {
		return nil, err
	}
	log.Debug().
		Str("conversation", branched.ConversationID).
		Str("base_checkpoint", baseCheckpointID).
		Msg("Conversation branched")
	return branched.Clone(), nil
}

// pin re-points a conversation's locked agent. It re-reads the state under
// the conversation's writer lock, so it can neither clobber nor be clobbered
// by a concurrent Commit.
func (s *Store) pin(conversationID string, agent models.AgentKind) (*models.ConversationState, error) {
	lock := s.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	state, ok := s.convs[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "conversation", ID: conversationID}
	}

	next := state.Clone()
	next.LockedAgent = agent
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.convs[conversationID] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

// Commit applies a mutation to a conversation under its writer lock and
// persists an immutable checkpoint of the resulting state. Returns the new
// checkpoint.
func (s *Store) Commit(_ context.Context, conversationID string, mutate func(*models.ConversationState)) (*models.Checkpoint, error) {
	lock := s.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	state, ok := s.convs[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "conversation", ID: conversationID}
	}

	// Mutate a copy, then swap it in: readers holding the old snapshot are
	// unaffected, and a panicking mutation leaves the store unchanged.
	next := state.Clone()
	mutate(next)
	next.UpdatedAt = time.Now().UTC()

	cp := &models.Checkpoint{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		State:          next.Clone(),
		CreatedAt:      next.UpdatedAt,
	}

	s.mu.Lock()
	s.convs[conversationID] = next
	s.checkpoints[cp.ID] = cp
	s.mu.Unlock()

	return cp, nil
}

// GetCheckpoint returns an immutable checkpoint by id.
func (s *Store) GetCheckpoint(_ context.Context, id string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, &ErrNotFound{Kind: "checkpoint", ID: id}
	}
	// Checkpoints are immutable; hand out a state copy anyway so a careless
	// caller can't break that.
	return &models.Checkpoint{
		ID:             cp.ID,
		ConversationID: cp.ConversationID,
		State:          cp.State.Clone(),
		CreatedAt:      cp.CreatedAt,
	}, nil
}

func (s *Store) put(state *models.ConversationState) error {
	s.mu.Lock()
	s.convs[state.ConversationID] = state.Clone()
	s.mu.Unlock()
	return nil
}

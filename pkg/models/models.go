// Package models defines the shared domain types for the Tiller control plane.
package models

import (
	"sort"
	"time"
)

// ── Agents ───────────────────────────────────────────────────

// AgentKind identifies one of the specialized agents the control plane can
// route a request to. The set is closed: routing to anything outside this
// list falls back to AgentChat.
type AgentKind string

const (
	// AgentChat is the default conversational agent and the routing fallback.
	AgentChat AgentKind = "chat"
	// AgentNotes handles document and note capture, retrieval, and edits.
	AgentNotes AgentKind = "notes"
	// AgentResearch handles web lookups and multi-source synthesis.
	AgentResearch AgentKind = "research"
	// AgentEditor handles in-place modification of an open document.
	AgentEditor AgentKind = "editor"
)

// DefaultAgent is returned whenever classification fails or resolves to an
// unregistered agent.
const DefaultAgent = AgentChat

// KnownAgents lists every registered agent kind in stable order.
func KnownAgents() []AgentKind {
	return []AgentKind{AgentChat, AgentNotes, AgentResearch, AgentEditor}
}

// IsKnownAgent reports whether k names a registered agent.
func IsKnownAgent(k AgentKind) bool {
	for _, a := range KnownAgents() {
		if a == k {
			return true
		}
	}
	return false
}

// ── Intent Classification ────────────────────────────────────

// ActionIntent describes what kind of operation the user is asking for.
type ActionIntent string

const (
	IntentObservation  ActionIntent = "observation"
	IntentGeneration   ActionIntent = "generation"
	IntentModification ActionIntent = "modification"
	IntentQuery        ActionIntent = "query"
	IntentAnalysis     ActionIntent = "analysis"
	IntentManagement   ActionIntent = "management"
)

// IsValidIntent reports whether a is one of the known action intents.
func IsValidIntent(a ActionIntent) bool {
	switch a {
	case IntentObservation, IntentGeneration, IntentModification,
		IntentQuery, IntentAnalysis, IntentManagement:
		return true
	}
	return false
}

// IntentResult is the outcome of classifying one user message.
// Confidence is always within [0,1]; TargetAgent always resolves to a
// registered agent (the classifier substitutes DefaultAgent otherwise).
type IntentResult struct {
	TargetAgent        AgentKind    `json:"target_agent"`
	Action             ActionIntent `json:"action_intent"`
	PermissionRequired bool         `json:"permission_required"`
	Confidence         float64      `json:"confidence"`
	Reasoning          string       `json:"reasoning,omitempty"`
}

// DefaultIntent is the safe fallback used on classifier timeout or
// malformed model output. Routing must never hard-fail.
func DefaultIntent() IntentResult {
	return IntentResult{
		TargetAgent:        DefaultAgent,
		Action:             IntentQuery,
		PermissionRequired: false,
		Confidence:         0.5,
	}
}

// ── Tool Catalog ─────────────────────────────────────────────

// CapabilityPack groups related tools so semantic search can be scoped
// (e.g. all web-crawling tools).
type CapabilityPack string

const (
	PackNotes  CapabilityPack = "notes"
	PackWeb    CapabilityPack = "web"
	PackComms  CapabilityPack = "comms"
	PackMedia  CapabilityPack = "media"
	PackSystem CapabilityPack = "system"
)

// ToolDescriptor describes one tool an agent may be provisioned with.
// Descriptors are immutable after catalog load.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Pack        CapabilityPack `json:"capability_pack"`
	Keywords    []string       `json:"keywords,omitempty"`
}

// ToolMatch is one semantic search hit: a tool name with its similarity
// score in [0,1].
type ToolMatch struct {
	Name  string  `json:"tool_name"`
	Score float64 `json:"score"`
}

// ── Tool Provisioning ────────────────────────────────────────

// ToolProvisioningPlan is the resolved set of tools one agent may use for a
// single request. The plan is advisory: the executor still checks each tool
// call against it. Plans are built per request and never persisted.
type ToolProvisioningPlan struct {
	Agent            AgentKind   `json:"agent"`
	CoreTools        []string    `json:"core_tools"`
	ConditionalTools []string    `json:"conditional_tools"`
	SemanticTools    []ToolMatch `json:"semantic_tools"`
	Rationale        string      `json:"rationale"`
}

// Union returns every tool in the plan exactly once, sorted by name.
func (p *ToolProvisioningPlan) Union() []string {
	seen := make(map[string]struct{})
	for _, t := range p.CoreTools {
		seen[t] = struct{}{}
	}
	for _, t := range p.ConditionalTools {
		seen[t] = struct{}{}
	}
	for _, m := range p.SemanticTools {
		seen[m.Name] = struct{}{}
	}
	union := make([]string, 0, len(seen))
	for t := range seen {
		union = append(union, t)
	}
	sort.Strings(union)
	return union
}

// Allows reports whether the plan permits a call to the named tool.
func (p *ToolProvisioningPlan) Allows(tool string) bool {
	for _, t := range p.Union() {
		if t == tool {
			return true
		}
	}
	return false
}

// ── Conversation State ───────────────────────────────────────

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // system | user | assistant | tool
	Content   string    `json:"content"`
	Agent     AgentKind `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ConversationState is the mutable per-conversation record. Message history
// is append-only; SharedContext keys are namespaced by the producing agent
// ("notes.last_note_id"). A non-empty LockedAgent pins routing and bypasses
// intent classification.
type ConversationState struct {
	ConversationID   string            `json:"conversation_id"`
	UserID           string            `json:"user_id"`
	SessionID        string            `json:"session_id"`
	Messages         []ChatMessage     `json:"messages"`
	SharedContext    map[string]string `json:"shared_context"`
	ActiveAgent      AgentKind         `json:"active_agent,omitempty"`
	LockedAgent      AgentKind         `json:"locked_agent,omitempty"`
	BaseCheckpointID string            `json:"base_checkpoint_id,omitempty"`
	IsComplete       bool              `json:"is_complete"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so checkpoints and branches never alias the
// live state's slices or maps.
func (s *ConversationState) Clone() *ConversationState {
	cp := *s
	cp.Messages = make([]ChatMessage, len(s.Messages))
	copy(cp.Messages, s.Messages)
	cp.SharedContext = make(map[string]string, len(s.SharedContext))
	for k, v := range s.SharedContext {
		cp.SharedContext[k] = v
	}
	return &cp
}

// Checkpoint is an immutable snapshot of conversation state, usable as a
// branch point.
type Checkpoint struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	State          *ConversationState `json:"state"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ── Streaming ────────────────────────────────────────────────

// EventKind is the type of a StreamEvent.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventContent  EventKind = "content"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Stable error codes carried by terminal error events.
const (
	ErrCodeStateStore   = "state_store_unreachable"
	ErrCodeCatalogEmpty = "catalog_empty"
	ErrCodeAgentFailed  = "agent_failed"
	ErrCodeBadRequest   = "bad_request"
)

// StreamEvent is one record in a request's event stream. Sequence is
// strictly increasing within a stream; exactly one terminal event
// (complete or error) is emitted, always last.
type StreamEvent struct {
	Kind      EventKind `json:"kind"`
	AgentName AgentKind `json:"agent_name,omitempty"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Sequence  uint64    `json:"sequence_number"`
}

// Terminal reports whether the event ends its stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// RunState tracks the executor state machine for one request.
type RunState string

const (
	RunInitialized RunState = "INITIALIZED"
	RunRouting     RunState = "ROUTING"
	RunExecuting   RunState = "EXECUTING"
	RunStreaming   RunState = "STREAMING"
	RunCompleted   RunState = "COMPLETED"
	RunFailed      RunState = "FAILED"
	RunCancelled   RunState = "CANCELLED"
)

// ── Requests & Responses ─────────────────────────────────────

// ChatRequest is the streaming entry point payload.
type ChatRequest struct {
	Query            string    `json:"query"`
	ConversationID   string    `json:"conversation_id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	LockedAgent      AgentKind `json:"locked_agent,omitempty"`
	BaseCheckpointID string    `json:"base_checkpoint_id,omitempty"`
	EditorContext    string    `json:"editor_context,omitempty"`
}

// CancelResponse acknowledges a cancel request. Success is true even when
// the underlying unit of work cannot be forcibly stopped (e.g. it was
// dispatched to an external queue) or has already finished.
type CancelResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SyncFailure reports one descriptor that could not be indexed.
type SyncFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// SyncResult is returned by the tool catalog batch upsert.
type SyncResult struct {
	Success  bool          `json:"success"`
	Count    int           `json:"count"`
	Failures []SyncFailure `json:"failures"`
}

// CacheStats is the embedding cache observability snapshot.
type CacheStats struct {
	Size       int     `json:"size"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	TTLSeconds int     `json:"ttl_seconds"`
	Enabled    bool    `json:"enabled"`
}

// ── Model Calls ──────────────────────────────────────────────

// TokenUsage accumulates token counts across model calls.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Completion is the result of one chat-model call.
type Completion struct {
	Content   string     `json:"content"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`
}

// ── Background Jobs ──────────────────────────────────────────

// Priority orders background jobs; lower runs sooner. The tiers are fixed
// so newly arrived interactive work is never starved behind bulk
// reprocessing.
type Priority int

const (
	PriorityInteractive Priority = 1
	PriorityBulkImport  Priority = 2
	PriorityReprocess   Priority = 5
	PriorityBackground  Priority = 8
)

// PriorityName returns the tier name for a priority value.
func PriorityName(p Priority) string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBulkImport:
		return "bulk_import"
	case PriorityReprocess:
		return "reprocess"
	case PriorityBackground:
		return "background"
	}
	return "unknown"
}

// JobStatus is the lifecycle of a background job.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Job is one unit of deferred (non-streamed) work. Total order is
// (Priority ascending, EnqueuedAt ascending): ties within a priority class
// are FIFO by arrival.
type Job struct {
	ID         string      `json:"id"`
	Priority   Priority    `json:"priority"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	Request    ChatRequest `json:"request"`
	Status     JobStatus   `json:"status"`
}

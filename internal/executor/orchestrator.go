// Package executor runs one chat request end to end:
//
//	load conversation state → classify intent → guardrails →
//	resolve tool plan → run the target agent → commit state + checkpoint →
//	terminal event.
//
// Every run emits an ordered event stream: sequence numbers are strictly
// increasing, and exactly one terminal event (complete or error) is emitted,
// always last. Cancellation is cooperative: Cancel fires the run's context
// and the run winds down at the next check.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/agents"
	"github.com/tillerhq/tiller/internal/catalog"
	"github.com/tillerhq/tiller/internal/classifier"
	"github.com/tillerhq/tiller/internal/conversation"
	"github.com/tillerhq/tiller/internal/guardrails"
	"github.com/tillerhq/tiller/internal/provision"
	"github.com/tillerhq/tiller/pkg/models"
)

// CodeCancelled is the error code carried by the terminal event of a
// cancelled run.
const CodeCancelled = "cancelled"

// Result summarizes a finished run.
type Result struct {
	State          models.RunState
	ConversationID string
	CheckpointID   string
}

// Orchestrator coordinates the full request pipeline and tracks in-flight
// runs for cancellation.
type Orchestrator struct {
	store      *conversation.Store
	classifier *classifier.Classifier
	guards     *guardrails.Engine
	planner    *provision.Planner
	registry   *agents.Registry
	catalog    *catalog.Catalog

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New wires an orchestrator from its pipeline stages.
func New(store *conversation.Store, cls *classifier.Classifier, guards *guardrails.Engine, planner *provision.Planner, registry *agents.Registry, cat *catalog.Catalog) *Orchestrator {
	return &Orchestrator{
		store:      store,
		classifier: cls,
		guards:     guards,
		planner:    planner,
		registry:   registry,
		catalog:    cat,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// stream enforces the event ordering contract for one run: monotonically
// increasing sequence numbers and at most one terminal event, after which
// further sends are dropped.
type stream struct {
	emit   func(models.StreamEvent) error
	seq    uint64
	closed bool
}

func (s *stream) send(ev models.StreamEvent) error {
	if s.closed {
		return nil
	}
	s.seq++
	ev.Sequence = s.seq
	if ev.Terminal() {
		s.closed = true
	}
	return s.emit(ev)
}

func (s *stream) status(agent models.AgentKind, msg string) error {
	return s.send(models.StreamEvent{Kind: models.EventStatus, AgentName: agent, Message: msg})
}

func (s *stream) fail(code, msg string) {
	_ = s.send(models.StreamEvent{Kind: models.EventError, Code: code, Message: msg})
}

// agentSink adapts the stream to the agent-facing content interface.
type agentSink struct {
	s     *stream
	agent models.AgentKind
}

func (a *agentSink) Content(msg string) error {
	return a.s.send(models.StreamEvent{Kind: models.EventContent, AgentName: a.agent, Message: msg})
}

// Run executes one chat request, emitting its event stream through emit.
// It blocks until the terminal event has been sent. runID registers the run
// for cancellation; it must be unique per run.
func (o *Orchestrator) Run(ctx context.Context, runID string, req models.ChatRequest, emit func(models.StreamEvent) error) Result {
	ctx, cancel := context.WithCancel(ctx)
	o.register(runID, cancel)
	defer o.unregister(runID)
	defer cancel()

	st := &stream{emit: emit}
	state := models.RunInitialized

	fail := func(runState models.RunState, code, msg string) Result {
		st.fail(code, msg)
		log.Warn().Str("run", runID).Str("code", code).Msg("Run failed: " + msg)
		return Result{State: runState}
	}

	// ── Routing ──
	state = models.RunRouting
	_ = st.status("", "Resolving conversation")

	conv, err := o.store.LoadOrCreate(ctx, req)
	if err != nil {
		var nf *conversation.ErrNotFound
		if errors.As(err, &nf) {
			return fail(models.RunFailed, models.ErrCodeBadRequest, err.Error())
		}
		return fail(models.RunFailed, models.ErrCodeStateStore, "conversation state unavailable: "+err.Error())
	}

	intent := o.classifier.Classify(ctx, req.Query, conv)
	if canceled(ctx) {
		return o.cancelled(st, runID)
	}
	_ = st.status(intent.TargetAgent, fmt.Sprintf("Routed to %s agent (confidence %.2f)", intent.TargetAgent, intent.Confidence))

	decision := o.guards.Evaluate(intent, req)
	if !decision.Allowed {
		return fail(models.RunFailed, models.ErrCodeBadRequest, "request rejected: "+decision.Reason)
	}
	if decision.RequireConfirmation {
		_ = st.status(intent.TargetAgent, "Confirmation required: "+decision.Reason)
	}

	// ── Provisioning ──
	if o.catalog.Count() == 0 {
		return fail(models.RunFailed, models.ErrCodeCatalogEmpty, "tool catalog is empty")
	}
	plan := o.planner.Plan(ctx, intent.TargetAgent, req.Query)
	_ = st.status(intent.TargetAgent, "Tool plan: "+plan.Rationale)

	// ── Execution ──
	state = models.RunExecuting
	agent := o.registry.Get(intent.TargetAgent)

	out, err := agent.Execute(ctx, agents.Input{
		Query:         req.Query,
		State:         conv,
		Plan:          plan,
		EditorContext: req.EditorContext,
	}, &agentSink{s: st, agent: agent.Kind()})
	if err != nil {
		if canceled(ctx) {
			return o.cancelled(st, runID)
		}
		return fail(models.RunFailed, models.ErrCodeAgentFailed, "agent execution failed: "+err.Error())
	}
	state = models.RunStreaming
	if canceled(ctx) {
		return o.cancelled(st, runID)
	}

	// ── Commit ──
	// State is committed and checkpointed only for successful runs; a failed
	// or cancelled run leaves the conversation untouched.
	cp, err := o.store.Commit(ctx, conv.ConversationID, func(s *models.ConversationState) {
		s.Messages = append(s.Messages,
			models.ChatMessage{Role: "user", Content: req.Query},
			models.ChatMessage{Role: "assistant", Content: out.Response, Agent: agent.Kind()},
		)
		for k, v := range out.ContextUpdates {
			s.SharedContext[k] = v
		}
		s.ActiveAgent = agent.Kind()
	})
	if err != nil {
		return fail(models.RunFailed, models.ErrCodeStateStore, "state commit failed: "+err.Error())
	}

	_ = st.send(models.StreamEvent{
		Kind:      models.EventComplete,
		AgentName: agent.Kind(),
		Message:   cp.ID,
	})
	state = models.RunCompleted

	log.Info().
		Str("run", runID).
		Str("conversation", conv.ConversationID).
		Str("agent", string(agent.Kind())).
		Msg("Run complete")
	return Result{State: state, ConversationID: conv.ConversationID, CheckpointID: cp.ID}
}

func (o *Orchestrator) cancelled(st *stream, runID string) Result {
	st.fail(CodeCancelled, "run cancelled")
	log.Info().Str("run", runID).Msg("Run cancelled")
	return Result{State: models.RunCancelled}
}

// Cancel requests cooperative cancellation of an in-flight run. It is
// idempotent and acknowledges success even when the run is unknown or has
// already finished.
func (o *Orchestrator) Cancel(runID string) models.CancelResponse {
	o.mu.Lock()
	cancel, ok := o.cancels[runID]
	o.mu.Unlock()

	if !ok {
		return models.CancelResponse{
			Success: true,
			JobID:   runID,
			Status:  string(models.RunCompleted),
			Message: "run is not in flight",
		}
	}
	cancel()
	return models.CancelResponse{
		Success: true,
		JobID:   runID,
		Status:  string(models.RunCancelled),
		Message: "cancellation requested",
	}
}

func (o *Orchestrator) register(runID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[runID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(runID string) {
	o.mu.Lock()
	delete(o.cancels, runID)
	o.mu.Unlock()
}

func canceled(ctx context.Context) bool {
	return ctx.Err() != nil
}

package guardrails_test

import (
	"testing"

	"github.com/tillerhq/tiller/internal/guardrails"
	"github.com/tillerhq/tiller/pkg/models"
)

func TestDestructiveIntentRequiresConfirmation(t *testing.T) {
	e := guardrails.NewEngine(guardrails.DefaultRules())

	d := e.Evaluate(models.IntentResult{
		TargetAgent:        models.AgentNotes,
		Action:             models.IntentModification,
		PermissionRequired: true,
		Confidence:         0.9,
	}, models.ChatRequest{Query: "delete my meeting notes"})

	if !d.Allowed {
		t.Fatal("destructive request should be allowed pending confirmation, not blocked")
	}
	if !d.RequireConfirmation {
		t.Error("destructive request should require confirmation")
	}
	if d.Rule != "confirm-destructive" {
		t.Errorf("Rule = %q, want confirm-destructive", d.Rule)
	}
}

func TestReadOnlyQueryPasses(t *testing.T) {
	e := guardrails.NewEngine(guardrails.DefaultRules())

	d := e.Evaluate(models.IntentResult{
		TargetAgent: models.AgentResearch,
		Action:      models.IntentQuery,
		Confidence:  0.8,
	}, models.ChatRequest{Query: "what happened in the markets today"})

	if !d.Allowed || d.RequireConfirmation {
		t.Errorf("read-only query decision = %+v, want plain allow", d)
	}
}

func TestEmptyQueryBlocked(t *testing.T) {
	e := guardrails.NewEngine(guardrails.DefaultRules())

	d := e.Evaluate(models.DefaultIntent(), models.ChatRequest{Query: ""})
	if d.Allowed {
		t.Error("empty query should be blocked")
	}
	if d.Rule != "block-empty-query" {
		t.Errorf("Rule = %q, want block-empty-query", d.Rule)
	}
}

func TestLowConfidenceWriteRequiresConfirmation(t *testing.T) {
	e := guardrails.NewEngine(guardrails.DefaultRules())

	d := e.Evaluate(models.IntentResult{
		TargetAgent:        models.AgentNotes,
		Action:             models.IntentGeneration,
		PermissionRequired: true,
		Confidence:         0.4,
	}, models.ChatRequest{Query: "save this"})

	if !d.RequireConfirmation {
		t.Error("low-confidence write should require confirmation")
	}
}

func TestLockedAgentSkipsConfidenceGate(t *testing.T) {
	e := guardrails.NewEngine(guardrails.DefaultRules())

	// Confidence gate must not fire for a pinned agent; only the
	// destructive-intent gate applies, and this is a generation.
	d := e.Evaluate(models.IntentResult{
		TargetAgent:        models.AgentEditor,
		Action:             models.IntentGeneration,
		PermissionRequired: true,
		Confidence:         1.0,
	}, models.ChatRequest{Query: "rewrite the intro", LockedAgent: models.AgentEditor})

	if d.RequireConfirmation {
		t.Errorf("locked-agent generation decision = %+v, want plain allow", d)
	}
}

func TestInvalidExpressionIsSkipped(t *testing.T) {
	e := guardrails.NewEngine([]guardrails.Rule{
		{Name: "broken", Expression: `this is not expr ((`, Effect: guardrails.EffectBlock},
		{Name: "works", Expression: `query_length > 5`, Effect: guardrails.EffectConfirm, Reason: "long"},
	})

	d := e.Evaluate(models.DefaultIntent(), models.ChatRequest{Query: "a long enough query"})
	if d.Rule != "works" {
		t.Errorf("Rule = %q, want the surviving rule to fire", d.Rule)
	}
}

func TestFirstFiringRuleWins(t *testing.T) {
	e := guardrails.NewEngine([]guardrails.Rule{
		{Name: "first", Expression: `true`, Effect: guardrails.EffectConfirm, Reason: "a"},
		{Name: "second", Expression: `true`, Effect: guardrails.EffectBlock, Reason: "b"},
	})

	d := e.Evaluate(models.DefaultIntent(), models.ChatRequest{Query: "x"})
	if d.Rule != "first" || !d.Allowed {
		t.Errorf("decision = %+v, want the first rule's confirm effect", d)
	}
}

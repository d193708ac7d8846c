// Package guardrails gates agent execution with rule expressions evaluated
// against the routing decision.
//
// Rules are expr programs over the classification result and the incoming
// request. Each rule either requires user confirmation or blocks outright.
// Rules are compiled once at startup; an expression that fails to compile is
// dropped with a warning rather than taking the engine down.
package guardrails

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/pkg/models"
)

// Effect is what a matched rule does to the request.
type Effect string

const (
	// EffectConfirm lets the request proceed but flags it for user confirmation.
	EffectConfirm Effect = "confirm"
	// EffectBlock rejects the request before any agent runs.
	EffectBlock Effect = "block"
)

// Rule is one named gate expression. The expression must evaluate to a bool;
// true means the rule fires.
type Rule struct {
	Name       string
	Expression string
	Effect     Effect
	Reason     string
}

// Decision is the outcome of evaluating all rules for one request.
type Decision struct {
	Allowed             bool   `json:"allowed"`
	RequireConfirmation bool   `json:"require_confirmation"`
	Rule                string `json:"rule,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// ruleEnv is the expression environment. Field names here are the
// identifiers rule authors use.
type ruleEnv struct {
	Agent              string  `expr:"agent"`
	Action             string  `expr:"action"`
	PermissionRequired bool    `expr:"permission_required"`
	Confidence         float64 `expr:"confidence"`
	LockedAgent        bool    `expr:"locked_agent"`
	QueryLength        int     `expr:"query_length"`
}

type compiledRule struct {
	rule    Rule
	program *vm.Program
}

// Engine evaluates compiled rules in order; the first rule that fires wins.
type Engine struct {
	rules []compiledRule
}

// DefaultRules are the built-in gates.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "confirm-destructive",
			Expression: `permission_required && (action == "modification" || action == "management")`,
			Effect:     EffectConfirm,
			Reason:     "request would modify or delete user data",
		},
		{
			Name:       "confirm-low-confidence-write",
			Expression: `permission_required && confidence < 0.6 && !locked_agent`,
			Effect:     EffectConfirm,
			Reason:     "low routing confidence on a write operation",
		},
		{
			Name:       "block-empty-query",
			Expression: `query_length == 0`,
			Effect:     EffectBlock,
			Reason:     "empty query",
		},
	}
}

// NewEngine compiles the given rules. Invalid expressions are skipped.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	for _, r := range rules {
		program, err := expr.Compile(r.Expression, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			log.Warn().Str("rule", r.Name).Err(err).Msg("Skipping guardrail rule that failed to compile")
			continue
		}
		e.rules = append(e.rules, compiledRule{rule: r, program: program})
	}
	log.Debug().Int("rules", len(e.rules)).Msg("Guardrail engine ready")
	return e
}

// Evaluate runs the rules against one routing decision. A rule that errors at
// runtime is treated as not firing.
func (e *Engine) Evaluate(intent models.IntentResult, req models.ChatRequest) Decision {
	env := ruleEnv{
		Agent:              string(intent.TargetAgent),
		Action:             string(intent.Action),
		PermissionRequired: intent.PermissionRequired,
		Confidence:         intent.Confidence,
		LockedAgent:        req.LockedAgent != "",
		QueryLength:        len(req.Query),
	}

	for _, cr := range e.rules {
		out, err := expr.Run(cr.program, env)
		if err != nil {
			log.Warn().Str("rule", cr.rule.Name).Err(err).Msg("Guardrail rule evaluation failed")
			continue
		}
		fired, _ := out.(bool)
		if !fired {
			continue
		}
		switch cr.rule.Effect {
		case EffectBlock:
			return Decision{Allowed: false, Rule: cr.rule.Name, Reason: cr.rule.Reason}
		case EffectConfirm:
			return Decision{Allowed: true, RequireConfirmation: true, Rule: cr.rule.Name, Reason: cr.rule.Reason}
		default:
			return Decision{Allowed: false, Rule: cr.rule.Name, Reason: fmt.Sprintf("unknown effect %q", cr.rule.Effect)}
		}
	}
	return Decision{Allowed: true}
}

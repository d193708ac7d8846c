// Package classifier routes a user message to a target agent with a single
// bounded model call.
//
// Classification never hard-fails: on timeout, transport error, or
// malformed model output the safe default (chat agent, confidence 0.5) is
// returned so the request keeps moving. A locked agent on the conversation
// bypasses the model call entirely.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/llm"
	"github.com/tillerhq/tiller/pkg/models"
)

// historyWindow is how many trailing turns of conversation are shown to the
// classification model.
const historyWindow = 6

// Classifier performs single-shot intent classification.
type Classifier struct {
	client  llm.Client
	timeout time.Duration
}

// New creates a classifier over the given model client.
func New(client llm.Client, cfg config.ClassifierConfig) *Classifier {
	return &Classifier{client: client, timeout: cfg.Timeout}
}

// Classify returns the routing decision for one user message. The returned
// IntentResult always names a registered agent and has confidence in [0,1].
func (c *Classifier) Classify(ctx context.Context, message string, state *models.ConversationState) models.IntentResult {
	// A locked agent pins routing for the whole conversation (mid-edit
	// sessions and the like). No model call needed.
	if state != nil && state.LockedAgent != "" {
		agent := state.LockedAgent
		if !models.IsKnownAgent(agent) {
			agent = models.DefaultAgent
		}
		return models.IntentResult{
			TargetAgent: agent,
			Action:      models.IntentQuery,
			Confidence:  1.0,
			Reasoning:   "locked agent",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	comp, err := c.client.Complete(ctx, c.buildMessages(message, state))
	if err != nil {
		log.Warn().Err(err).Msg("Intent classification failed, using default route")
		return models.DefaultIntent()
	}

	result, err := parseResult(comp.Content)
	if err != nil {
		log.Warn().Err(err).Str("output", truncate(comp.Content, 200)).Msg("Malformed classifier output, using default route")
		return models.DefaultIntent()
	}
	return result
}

func (c *Classifier) buildMessages(message string, state *models.ConversationState) []models.ChatMessage {
	var sb strings.Builder
	sb.WriteString("You route user requests to one of these agents:\n")
	for _, a := range models.KnownAgents() {
		sb.WriteString("- ")
		sb.WriteString(string(a))
		sb.WriteString("\n")
	}
	sb.WriteString(`
Respond with only a JSON object:
{"target_agent": "...", "action_intent": "observation|generation|modification|query|analysis|management", "permission_required": true|false, "confidence": 0.0-1.0, "reasoning": "..."}

permission_required is true when the request would modify or delete user data.`)

	messages := []models.ChatMessage{{Role: "system", Content: sb.String()}}

	if state != nil && len(state.Messages) > 0 {
		start := len(state.Messages) - historyWindow
		if start < 0 {
			start = 0
		}
		var ctxb strings.Builder
		ctxb.WriteString("Recent conversation:\n")
		for _, m := range state.Messages[start:] {
			ctxb.WriteString(m.Role)
			ctxb.WriteString(": ")
			ctxb.WriteString(truncate(m.Content, 300))
			ctxb.WriteString("\n")
		}
		messages = append(messages, models.ChatMessage{Role: "user", Content: ctxb.String()})
	}

	messages = append(messages, models.ChatMessage{
		Role:    "user",
		Content: "Classify this message: " + message,
	})
	return messages
}

// parseResult extracts and validates an IntentResult from model output.
// Output wrapped in code fences or surrounding prose is tolerated.
func parseResult(content string) (models.IntentResult, error) {
	raw := extractJSON(content)
	if raw == "" {
		return models.IntentResult{}, fmt.Errorf("no JSON object in output")
	}

	var parsed struct {
		TargetAgent        string  `json:"target_agent"`
		ActionIntent       string  `json:"action_intent"`
		PermissionRequired bool    `json:"permission_required"`
		Confidence         float64 `json:"confidence"`
		Reasoning          string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.IntentResult{}, fmt.Errorf("decode: %w", err)
	}
	if parsed.TargetAgent == "" {
		return models.IntentResult{}, fmt.Errorf("missing target_agent")
	}

	result := models.IntentResult{
		TargetAgent:        models.AgentKind(parsed.TargetAgent),
		Action:             models.ActionIntent(parsed.ActionIntent),
		PermissionRequired: parsed.PermissionRequired,
		Confidence:         parsed.Confidence,
		Reasoning:          parsed.Reasoning,
	}

	// Unregistered agents fall back to the default route.
	if !models.IsKnownAgent(result.TargetAgent) {
		log.Debug().Str("agent", parsed.TargetAgent).Msg("Classifier named unregistered agent, falling back to default")
		result.TargetAgent = models.DefaultAgent
	}
	if !models.IsValidIntent(result.Action) {
		result.Action = models.IntentQuery
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}

// extractJSON returns the first top-level {...} block in the text.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

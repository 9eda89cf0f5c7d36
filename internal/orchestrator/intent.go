package orchestrator

import (
	"context"
	"fmt"

	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/session"
)

const decisionTool = "record_agent_decision"

var decisionSchema = reasoning.ToolSchema{
	Name:        decisionTool,
	Description: "Record the agent's decision and routing. MANDATORY for all responses.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{"type": "string"},
			"decision": map[string]any{
				"type": "string",
				"enum": []string{DecisionApproved, DecisionRejected, DecisionNeedsInfo, DecisionScheduled},
			},
			"reason":  map[string]any{"type": "string"},
			"message": map[string]any{"type": "string", "description": "The conversational response shown to the user."},
			"evidence": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"next_agent": map[string]any{
				"type":        "string",
				"description": "The next collaborator to invoke, or empty if finished.",
			},
		},
		"required": []string{"agent", "decision", "reason", "message", "evidence", "next_agent"},
	},
}

const classifierPrompt = `You are the PharmacistAgent for an autonomous pharmacy, the first hop of a
decision chain. Identify the user's intent and route it.

ROUTING:
- Ordering or buying medication -> decision APPROVED, next_agent "order",
  evidence like ["Medicine: Amoxicillin", "Strength: 500mg", "Quantity: 3"].
- A single clearly named medication where stock or policy needs checking
  hop by hop -> decision APPROVED, next_agent "inventory", with the same
  evidence shape. The chain continues inventory -> policy -> fulfillment.
- Explicit confirmation of a pending order ("yes", "confirm", "place it") ->
  decision APPROVED, next_agent "confirm".
- Cancellation ("no", "cancel", "stop") -> decision APPROVED, next_agent "cancel".
- Refill questions ("do I need anything", "refill status") -> decision
  SCHEDULED, next_agent "refill".
- Order status ("where is my order") -> decision APPROVED, next_agent "status".
- Greetings or general questions -> decision NEEDS_INFO, empty next_agent,
  with a warm conversational message.

Use the conversation history: "confirm" refers to whatever was proposed in the
previous turn. Use the patient's real name from the context naturally, without
repeating it in every sentence. Record your decision with record_agent_decision.`

// Classifier performs per-turn intent classification.
type Classifier struct {
	svc reasoning.Service
}

// NewClassifier creates a classifier over the reasoning service.
func NewClassifier(svc reasoning.Service) *Classifier {
	return &Classifier{svc: svc}
}

// Classify obtains the turn's initial decision envelope.
func (c *Classifier) Classify(ctx context.Context, message string, patientContext string, pendingSummary string, history []session.Turn) (*AgentDecision, error) {
	msgs := make([]reasoning.Message, 0, len(history)+3)
	msgs = append(msgs, reasoning.Message{
		Role:    reasoning.RoleSystem,
		Content: fmt.Sprintf("PATIENT CONTEXT:\n%s", patientContext),
	})
	if pendingSummary != "" {
		msgs = append(msgs, reasoning.Message{
			Role: reasoning.RoleSystem,
			Content: fmt.Sprintf("SYSTEM STATUS: the user has a PENDING ORDER awaiting confirmation.\n%s\n"+
				"An affirmative reply must route to \"confirm\"; a negative reply to \"cancel\". "+
				"Only route to \"order\" if the user asks to change or add items.", pendingSummary),
		})
	}
	for _, turn := range history {
		msgs = append(msgs, reasoning.Message{Role: reasoning.Role(turn.Role), Content: turn.Content})
	}
	msgs = append(msgs, reasoning.Message{Role: reasoning.RoleUser, Content: message})

	res, err := c.svc.Complete(ctx, reasoning.Request{
		System:      classifierPrompt,
		Messages:    msgs,
		Tools:       []reasoning.ToolSchema{decisionSchema},
		ForceTool:   decisionTool,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	call, err := res.ForcedCall(decisionTool)
	if err != nil {
		return nil, err
	}

	var decision AgentDecision
	if err := reasoning.DecodeArguments(call, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

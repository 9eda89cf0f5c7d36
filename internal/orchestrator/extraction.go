package orchestrator

import (
	"context"
	"fmt"

	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// ExtractedEntity is one medicine mention pulled out of a message.
// Quantity 0 means unspecified and needs clarification downstream.
type ExtractedEntity struct {
	Medicine   string  `json:"medicine"`
	Dosage     string  `json:"dosage"`
	Frequency  string  `json:"frequency"`
	Quantity   int     `json:"quantity"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"raw_text"`
}

// ExtractionResult is the extraction collaborator's structured output.
type ExtractionResult struct {
	Entities             []ExtractedEntity `json:"entities"`
	NeedsClarification   bool              `json:"needs_clarification"`
	ClarificationMessage string            `json:"clarification_message"`
}

const extractTool = "extract_order_details"

var extractSchema = reasoning.ToolSchema{
	Name:        extractTool,
	Description: "Record the medicines extracted from the user's message.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"medicine":   map[string]any{"type": "string"},
						"dosage":     map[string]any{"type": "string"},
						"frequency":  map[string]any{"type": "string"},
						"quantity":   map[string]any{"type": "integer"},
						"confidence": map[string]any{"type": "number"},
						"raw_text":   map[string]any{"type": "string"},
					},
					"required": []string{"medicine", "quantity", "confidence"},
				},
			},
			"needs_clarification":   map[string]any{"type": "boolean"},
			"clarification_message": map[string]any{"type": "string"},
		},
		"required": []string{"entities", "needs_clarification"},
	},
}

const extractionPrompt = `You are a pharmacy assistant that extracts medicine order details from natural conversation.

Use the conversation history for context: when the user says "it", "that", or
"the same", resolve the reference to the medicine discussed previously.

For each medicine mentioned extract:
- medicine: the common medicine name
- dosage: the strength (e.g. "500mg"), empty if not given
- frequency: how often it is taken, empty if not given
- quantity: units requested, 0 if not specified
- confidence: 0.0 to 1.0

Rules:
1. If quantity is not specified, set it to 0.
2. Extract every medicine mentioned.
3. Normalize medicine names (paracetamol and acetaminophen are the same).
4. If the request is ambiguous, set needs_clarification and provide a helpful
   clarification_message.

Record the result with the extract_order_details tool.`

// Extractor is the entity-extraction collaborator.
type Extractor struct {
	svc reasoning.Service
}

// NewExtractor creates an extractor over the reasoning service.
func NewExtractor(svc reasoning.Service) *Extractor {
	return &Extractor{svc: svc}
}

// Extract parses the message into order entities, passing conversation
// history so pronoun references resolve to previously discussed medicines.
func (e *Extractor) Extract(ctx context.Context, message string, patientContext string, history []session.Turn) (*ExtractionResult, error) {
	msgs := make([]reasoning.Message, 0, len(history)+2)
	if patientContext != "" {
		msgs = append(msgs, reasoning.Message{
			Role:    reasoning.RoleSystem,
			Content: fmt.Sprintf("Patient's recent medication orders: %s", patientContext),
		})
	}
	for _, turn := range history {
		msgs = append(msgs, reasoning.Message{Role: reasoning.Role(turn.Role), Content: turn.Content})
	}
	msgs = append(msgs, reasoning.Message{Role: reasoning.RoleUser, Content: message})

	res, err := e.svc.Complete(ctx, reasoning.Request{
		System:      extractionPrompt,
		Messages:    msgs,
		Tools:       []reasoning.ToolSchema{extractSchema},
		ForceTool:   extractTool,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	call, err := res.ForcedCall(extractTool)
	if err != nil {
		return nil, err
	}

	var out ExtractionResult
	if err := reasoning.DecodeArguments(call, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

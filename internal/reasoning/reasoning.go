// Package reasoning defines the contract with the natural-language reasoning
// collaborator. The core treats the collaborator as an opaque function from a
// prompt plus context to structured output; any schema violation is a
// CollaboratorError the caller recovers from locally.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes one structured output the collaborator may produce,
// in function-call style: a name plus a JSON schema for its arguments.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a structured output conforming to a ToolSchema.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Request is a single completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSchema
	// ForceTool names a tool the collaborator must call; empty allows free text.
	ForceTool   string
	Temperature float64
}

// Result is the collaborator's structured response.
type Result struct {
	Text  string
	Calls []ToolCall
}

// Service is the reasoning collaborator consumed by the core.
type Service interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// CollaboratorError marks a reasoning-service failure: transport errors,
// timeouts, or output violating the expected schema.
type CollaboratorError struct {
	Op    string
	Cause error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("reasoning %s: %v", e.Op, e.Cause)
}

func (e *CollaboratorError) Unwrap() error { return e.Cause }

// NewCollaboratorError wraps cause as a collaborator failure.
func NewCollaboratorError(op string, cause error) *CollaboratorError {
	return &CollaboratorError{Op: op, Cause: cause}
}

// ForcedCall returns the single call matching the request's forced tool, or a
// CollaboratorError when the collaborator did not honor the contract.
func (r *Result) ForcedCall(name string) (*ToolCall, error) {
	for i := range r.Calls {
		if r.Calls[i].Name == name {
			return &r.Calls[i], nil
		}
	}
	return nil, NewCollaboratorError("forced call", fmt.Errorf("expected tool call %q, got %d calls", name, len(r.Calls)))
}

// DecodeArguments unmarshals a tool call's arguments into v, surfacing schema
// violations as CollaboratorErrors.
func DecodeArguments(call *ToolCall, v any) error {
	if err := json.Unmarshal(call.Arguments, v); err != nil {
		return NewCollaboratorError("decode arguments", fmt.Errorf("tool %s: %w", call.Name, err))
	}
	return nil
}

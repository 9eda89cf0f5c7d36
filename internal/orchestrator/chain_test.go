package orchestrator

import (
	"context"
	"errors"
	"testing"
)

type stubCollaborator struct {
	name    string
	decide  func(t *Turn) (*AgentDecision, error)
	visited int
}

func (s *stubCollaborator) Name() string { return s.name }

func (s *stubCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	s.visited++
	return s.decide(t)
}

func TestChainHandsOffThroughRegistry(t *testing.T) {
	second := &stubCollaborator{name: "policy", decide: func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "policy", Decision: DecisionApproved, Evidence: []string{"Quantity: 10"}}, nil
	}}
	registry := NewRegistry(second)

	turn := &Turn{}
	initial := &AgentDecision{
		Agent:     "inventory",
		Decision:  DecisionApproved,
		Evidence:  []string{"Medicine: Paracetamol", "Quantity: 20"},
		NextAgent: "policy",
	}

	final, err := registry.Run(context.Background(), turn, initial)
	if err != nil {
		t.Fatal(err)
	}
	if final.Agent != "policy" {
		t.Errorf("final agent = %s", final.Agent)
	}
	if second.visited != 1 {
		t.Errorf("policy visited %d times", second.visited)
	}
	// Later hop's evidence won the merge
	if turn.Payload.Quantity != 10 {
		t.Errorf("payload quantity = %d, want 10", turn.Payload.Quantity)
	}
	if turn.Payload.Medicine != "Paracetamol" {
		t.Errorf("payload medicine = %q", turn.Payload.Medicine)
	}
}

func TestChainSeedsQuantityDefault(t *testing.T) {
	policy := &stubCollaborator{name: "policy", decide: func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "policy", Decision: DecisionApproved}, nil
	}}
	registry := NewRegistry(policy)

	turn := &Turn{}
	initial := &AgentDecision{
		Agent:     "inventory",
		Decision:  DecisionApproved,
		Evidence:  []string{"Medicine: Paracetamol"},
		NextAgent: "policy",
	}

	if _, err := registry.Run(context.Background(), turn, initial); err != nil {
		t.Fatal(err)
	}
	if turn.Payload.Quantity != DefaultQuantity {
		t.Errorf("payload quantity = %d, want %d", turn.Payload.Quantity, DefaultQuantity)
	}
	if turn.Payload.Medicine != "Paracetamol" {
		t.Errorf("payload medicine = %q", turn.Payload.Medicine)
	}
}

func TestChainStopsOnRejection(t *testing.T) {
	never := &stubCollaborator{name: "fulfillment", decide: func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "fulfillment", Decision: DecisionApproved}, nil
	}}
	rejecting := &stubCollaborator{name: "policy", decide: func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{
			Agent:     "policy",
			Decision:  DecisionRejected,
			Reason:    "Out of stock",
			NextAgent: "fulfillment",
		}, nil
	}}
	registry := NewRegistry(rejecting, never)

	turn := &Turn{}
	initial := &AgentDecision{Decision: DecisionApproved, NextAgent: "policy"}

	final, err := registry.Run(context.Background(), turn, initial)
	if err != nil {
		t.Fatal(err)
	}
	if final.Decision != DecisionRejected {
		t.Errorf("final decision = %s", final.Decision)
	}
	if never.visited != 0 {
		t.Error("chain continued past a rejection")
	}
}

func TestChainBoundedByRegistrySize(t *testing.T) {
	// Two collaborators that forever hand off to each other
	a := &stubCollaborator{name: "a"}
	b := &stubCollaborator{name: "b"}
	a.decide = func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "a", Decision: DecisionApproved, NextAgent: "b"}, nil
	}
	b.decide = func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "b", Decision: DecisionApproved, NextAgent: "a"}, nil
	}
	registry := NewRegistry(a, b)

	turn := &Turn{}
	initial := &AgentDecision{Decision: DecisionApproved, NextAgent: "a"}

	if _, err := registry.Run(context.Background(), turn, initial); err != nil {
		t.Fatal(err)
	}
	if total := a.visited + b.visited; total > registry.Len() {
		t.Errorf("chain made %d hops with %d collaborators", total, registry.Len())
	}
}

func TestChainStopsAtUnknownAgent(t *testing.T) {
	registry := NewRegistry()

	turn := &Turn{}
	initial := &AgentDecision{Agent: "inventory", Decision: DecisionApproved, NextAgent: "nobody"}

	final, err := registry.Run(context.Background(), turn, initial)
	if err != nil {
		t.Fatal(err)
	}
	if final != initial {
		t.Error("expected the initial decision back")
	}
}

func TestChainStopsWhenResponseAttached(t *testing.T) {
	responder := &stubCollaborator{name: "confirm", decide: func(turn *Turn) (*AgentDecision, error) {
		turn.Response = &Response{Message: "Your order has been placed."}
		return &AgentDecision{Agent: "confirm", Decision: DecisionApproved, NextAgent: "status"}, nil
	}}
	never := &stubCollaborator{name: "status", decide: func(_ *Turn) (*AgentDecision, error) {
		return &AgentDecision{Agent: "status", Decision: DecisionApproved}, nil
	}}
	registry := NewRegistry(responder, never)

	turn := &Turn{}
	initial := &AgentDecision{Decision: DecisionApproved, NextAgent: "confirm"}

	if _, err := registry.Run(context.Background(), turn, initial); err != nil {
		t.Fatal(err)
	}
	if never.visited != 0 {
		t.Error("chain continued past an attached response")
	}
}

func TestChainSurfacesCollaboratorError(t *testing.T) {
	failing := &stubCollaborator{name: "inventory", decide: func(_ *Turn) (*AgentDecision, error) {
		return nil, errors.New("store unavailable")
	}}
	registry := NewRegistry(failing)

	turn := &Turn{}
	initial := &AgentDecision{Decision: DecisionApproved, NextAgent: "inventory"}

	if _, err := registry.Run(context.Background(), turn, initial); err == nil {
		t.Fatal("expected error")
	}
}

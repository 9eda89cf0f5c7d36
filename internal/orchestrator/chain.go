package orchestrator

import (
	"context"
	"fmt"
)

// Collaborator is one decision-producing hop in the hand-off chain. A
// collaborator may attach a final Response to the turn, which terminates the
// chain.
type Collaborator interface {
	Name() string
	Decide(ctx context.Context, t *Turn) (*AgentDecision, error)
}

// Registry holds the named collaborators a decision may hand off to.
type Registry struct {
	collaborators map[string]Collaborator
}

// NewRegistry creates a registry over the given collaborators.
func NewRegistry(collaborators ...Collaborator) *Registry {
	r := &Registry{collaborators: make(map[string]Collaborator, len(collaborators))}
	for _, c := range collaborators {
		r.collaborators[c.Name()] = c
	}
	return r
}

// Lookup returns the collaborator registered under name.
func (r *Registry) Lookup(name string) (Collaborator, bool) {
	c, ok := r.collaborators[name]
	return c, ok
}

// Len returns the number of registered collaborators, which also bounds the
// hop count of any chain.
func (r *Registry) Len() int {
	return len(r.collaborators)
}

// Run drives the hand-off chain starting from an initial decision. The turn
// payload is seeded from the initial decision's evidence, which applies the
// quantity default when no hop names one; each further hop merges its own
// evidence on top. The chain ends when a collaborator returns REJECTED,
// attaches a final response, or names no registered next collaborator. The
// hop count is bounded by the registry size so two collaborators referencing
// each other cannot loop forever.
func (r *Registry) Run(ctx context.Context, t *Turn, initial *AgentDecision) (*AgentDecision, error) {
	current := initial
	t.Payload = PayloadFromEvidence(current.Evidence)

	for hops := 0; hops < r.Len(); hops++ {
		next, ok := r.Lookup(current.NextAgent)
		if !ok {
			return current, nil
		}

		decision, err := next.Decide(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("collaborator %s: %w", next.Name(), err)
		}
		t.Decisions = append(t.Decisions, decision)

		if decision.Decision == DecisionRejected {
			return decision, nil
		}
		t.Payload.Merge(decision.Evidence)
		current = decision

		if t.Response != nil {
			return current, nil
		}
	}
	return current, nil
}

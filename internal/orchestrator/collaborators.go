package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/safety"
)

// inventoryCollaborator checks availability and pricing for the single item
// carried in the payload, then hands off to the policy collaborator.
type inventoryCollaborator struct {
	store  catalog.Store
	prices *catalog.PriceTable
}

func (c *inventoryCollaborator) Name() string { return "inventory" }

func (c *inventoryCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	name := t.Payload.Medicine
	if name == "" {
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionNeedsInfo,
			Reason:   "No medicine named in the request.",
			Message:  "Which medicine would you like to order?",
		}, nil
	}

	matches, err := c.store.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionRejected,
			Reason:   fmt.Sprintf("Medication %s not found in inventory.", name),
			Message:  fmt.Sprintf("We cannot fulfill this. I couldn't find '%s' in our inventory.", name),
		}, nil
	}

	med := bestMatch(matches, t.Payload.Strength)
	if med.StockLevel < t.Payload.Quantity {
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionRejected,
			Reason:   fmt.Sprintf("Insufficient stock for %s.", med.Name),
			Message:  fmt.Sprintf("We cannot fulfill this. Only %d units of %s are in stock.", med.StockLevel, med.Name),
			Evidence: []string{
				fmt.Sprintf("Stock: %d", med.StockLevel),
				fmt.Sprintf("Requested: %d", t.Payload.Quantity),
			},
		}, nil
	}

	price := c.prices.Price(med.Name)
	return &AgentDecision{
		Agent:    c.Name(),
		Decision: DecisionApproved,
		Reason:   "Sufficient stock available.",
		Evidence: []string{
			fmt.Sprintf("Medicine: %s", med.Name),
			fmt.Sprintf("Strength: %s", med.Strength),
			fmt.Sprintf("Stock: %d", med.StockLevel),
			fmt.Sprintf("Price: %.2f", price),
			fmt.Sprintf("Requires Prescription: %s", yesNo(med.PrescriptionRequired)),
		},
		NextAgent: "policy",
	}, nil
}

// policyCollaborator runs the rule evaluator over the payload's item and
// hands off to fulfillment when the order may proceed.
type policyCollaborator struct {
	store catalog.Store
}

func (c *policyCollaborator) Name() string { return "policy" }

func (c *policyCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	matches, err := c.store.Search(ctx, t.Payload.Medicine)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionRejected,
			Reason:   fmt.Sprintf("Medication %s not found in inventory.", t.Payload.Medicine),
		}, nil
	}
	med := bestMatch(matches, t.Payload.Strength)

	result := safety.Evaluate(
		[]safety.Request{{Name: med.Name, Quantity: t.Payload.Quantity}},
		[]catalog.Medicine{med},
		false,
	)

	if result.Decision == safety.DecisionReject {
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionRejected,
			Reason:   strings.Join(result.Reasons, " "),
			Message:  fmt.Sprintf("Safety Check Failed. %s", strings.Join(result.Reasons, " ")),
		}, nil
	}

	evidence := []string{fmt.Sprintf("Medicine: %s", med.Name)}
	if result.AllowedQuantity > 0 && result.AllowedQuantity < t.Payload.Quantity {
		evidence = append(evidence, fmt.Sprintf("Quantity: %d", result.AllowedQuantity))
	}
	return &AgentDecision{
		Agent:     c.Name(),
		Decision:  DecisionApproved,
		Reason:    strings.Join(result.Reasons, " "),
		Evidence:  evidence,
		NextAgent: "fulfillment",
	}, nil
}

// bestMatch prefers a result whose strength contains the requested dosage
// substring, falling back to the first result.
func bestMatch(matches []catalog.Medicine, dosage string) catalog.Medicine {
	if dosage == "" {
		return matches[0]
	}
	needle := strings.ToLower(dosage)
	for _, m := range matches {
		if strings.Contains(strings.ToLower(m.Strength), needle) {
			return m
		}
	}
	return matches[0]
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Package safety implements the deterministic safety and policy rule evaluator.
// Evaluation is a pure function of its inputs; generative narrative text is
// never part of the decision path.
package safety

import (
	"fmt"

	"github.com/pharmaops/go-rxchat/internal/catalog"
)

// Decision is the evaluator's verdict for a whole order.
type Decision string

const (
	DecisionApprove     Decision = "APPROVE"
	DecisionConditional Decision = "CONDITIONAL"
	DecisionReject      Decision = "REJECT"
)

// DefaultQuantity is assumed when a requested item carries no quantity.
const DefaultQuantity = 30

// Request is one requested line item, paired positionally with a catalog match.
type Request struct {
	Name     string
	Quantity int
}

// Result is the immutable outcome of an evaluation.
type Result struct {
	Decision             Decision `json:"decision"`
	Reasons              []string `json:"reasons"`
	AllowedQuantity      int      `json:"allowed_quantity,omitempty"`
	RequiresFollowup     bool     `json:"requires_followup"`
	RequiresPrescription bool     `json:"requires_prescription"`
	BlockedItems         []string `json:"blocked_items,omitempty"`
}

// Evaluate runs all policy checks over the matched items together. Matches are
// paired positionally with requests; when requests run out, DefaultQuantity is
// assumed. The aggregation is REJECT only when every item is blocked.
func Evaluate(requests []Request, matches []catalog.Medicine, hasPrescription bool) Result {
	var (
		reasons              []string
		blocked              []string
		requiresPrescription bool
		requiresFollowup     bool
		allowedQuantity      int
	)

	for i, med := range matches {
		requested := DefaultQuantity
		if i < len(requests) && requests[i].Quantity > 0 {
			requested = requests[i].Quantity
		}

		if med.Discontinued {
			blocked = append(blocked, med.Name)
			reasons = append(reasons, fmt.Sprintf("%s has been discontinued and is no longer available.", med.Name))
			continue
		}

		if med.PrescriptionRequired {
			requiresPrescription = true
			if !hasPrescription {
				reasons = append(reasons, fmt.Sprintf("%s requires a valid prescription.", med.Name))
			}
		}

		if med.ControlledSubstance {
			reasons = append(reasons, fmt.Sprintf("%s is a controlled substance. Special handling required.", med.Name))
			requiresFollowup = true
		}

		if med.StockLevel == 0 {
			blocked = append(blocked, med.Name)
			reasons = append(reasons, fmt.Sprintf("%s is currently out of stock.", med.Name))
			continue
		}

		if med.StockLevel < requested {
			allowedQuantity = min(med.StockLevel, med.MaxQuantityPerOrder)
			reasons = append(reasons, fmt.Sprintf("Limited stock available for %s. Maximum quantity: %d", med.Name, allowedQuantity))
		}

		if requested > med.MaxQuantityPerOrder {
			if allowedQuantity == 0 {
				allowedQuantity = med.MaxQuantityPerOrder
			}
			reasons = append(reasons, fmt.Sprintf("Maximum quantity per order for %s is %d", med.Name, med.MaxQuantityPerOrder))
		}
	}

	var decision Decision
	switch {
	case len(blocked) > 0 && len(blocked) == len(matches):
		decision = DecisionReject
	case len(blocked) > 0 || (requiresPrescription && !hasPrescription):
		decision = DecisionConditional
	case requiresFollowup || allowedQuantity > 0:
		decision = DecisionConditional
	default:
		decision = DecisionApprove
		if len(reasons) == 0 {
			reasons = append(reasons, "All safety checks passed.")
		}
	}

	return Result{
		Decision:             decision,
		Reasons:              reasons,
		AllowedQuantity:      allowedQuantity,
		RequiresFollowup:     requiresFollowup,
		RequiresPrescription: requiresPrescription,
		BlockedItems:         blocked,
	}
}

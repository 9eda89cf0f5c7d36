package safety

import (
	"reflect"
	"testing"

	"github.com/pharmaops/go-rxchat/internal/catalog"
)

func med(name string, stock, maxPerOrder int) catalog.Medicine {
	return catalog.Medicine{
		ID:                  "MED-" + name,
		Name:                name,
		Strength:            "500mg",
		StockLevel:          stock,
		UnitPrice:           0.15,
		MaxQuantityPerOrder: maxPerOrder,
	}
}

func TestEvaluateApprove(t *testing.T) {
	result := Evaluate(
		[]Request{{Name: "Paracetamol", Quantity: 20}},
		[]catalog.Medicine{med("Paracetamol", 500, 60)},
		false,
	)

	if result.Decision != DecisionApprove {
		t.Fatalf("decision = %s, want APPROVE", result.Decision)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "All safety checks passed." {
		t.Errorf("reasons = %v", result.Reasons)
	}
	if result.AllowedQuantity != 0 {
		t.Errorf("allowed quantity = %d, want 0", result.AllowedQuantity)
	}
}

func TestEvaluateLimitedStockCapsQuantity(t *testing.T) {
	result := Evaluate(
		[]Request{{Name: "Paracetamol", Quantity: 30}},
		[]catalog.Medicine{med("Paracetamol", 10, 30)},
		false,
	)

	if result.Decision != DecisionConditional {
		t.Fatalf("decision = %s, want CONDITIONAL", result.Decision)
	}
	if result.AllowedQuantity != 10 {
		t.Errorf("allowed quantity = %d, want 10", result.AllowedQuantity)
	}
}

func TestEvaluateMaxPerOrderCap(t *testing.T) {
	result := Evaluate(
		[]Request{{Name: "Paracetamol", Quantity: 100}},
		[]catalog.Medicine{med("Paracetamol", 500, 60)},
		false,
	)

	if result.Decision != DecisionConditional {
		t.Fatalf("decision = %s, want CONDITIONAL", result.Decision)
	}
	if result.AllowedQuantity != 60 {
		t.Errorf("allowed quantity = %d, want 60", result.AllowedQuantity)
	}
}

func TestEvaluatePrescriptionRequired(t *testing.T) {
	rx := med("Amoxicillin", 200, 30)
	rx.PrescriptionRequired = true

	result := Evaluate([]Request{{Name: "Amoxicillin", Quantity: 10}}, []catalog.Medicine{rx}, false)
	if result.Decision != DecisionConditional {
		t.Fatalf("decision = %s, want CONDITIONAL", result.Decision)
	}
	if !result.RequiresPrescription {
		t.Error("expected requires_prescription")
	}

	// Prescription on file clears the caveat
	result = Evaluate([]Request{{Name: "Amoxicillin", Quantity: 10}}, []catalog.Medicine{rx}, true)
	if result.Decision != DecisionApprove {
		t.Fatalf("decision with prescription = %s, want APPROVE", result.Decision)
	}
}

func TestEvaluateControlledSubstance(t *testing.T) {
	ctrl := med("Tramadol", 100, 20)
	ctrl.ControlledSubstance = true

	result := Evaluate([]Request{{Name: "Tramadol", Quantity: 10}}, []catalog.Medicine{ctrl}, true)
	if result.Decision != DecisionConditional {
		t.Fatalf("decision = %s, want CONDITIONAL", result.Decision)
	}
	if !result.RequiresFollowup {
		t.Error("expected requires_followup")
	}
}

func TestEvaluateAllBlockedRejects(t *testing.T) {
	gone := med("Ranitidine", 0, 30)
	gone.Discontinued = true

	result := Evaluate([]Request{{Name: "Ranitidine", Quantity: 10}}, []catalog.Medicine{gone}, false)
	if result.Decision != DecisionReject {
		t.Fatalf("decision = %s, want REJECT", result.Decision)
	}
	if len(result.BlockedItems) != 1 || result.BlockedItems[0] != "Ranitidine" {
		t.Errorf("blocked = %v", result.BlockedItems)
	}
}

func TestEvaluatePartialBlockIsConditional(t *testing.T) {
	gone := med("Ranitidine", 0, 30)
	gone.Discontinued = true

	result := Evaluate(
		[]Request{{Name: "Ranitidine", Quantity: 10}, {Name: "Paracetamol", Quantity: 10}},
		[]catalog.Medicine{gone, med("Paracetamol", 500, 60)},
		false,
	)
	if result.Decision != DecisionConditional {
		t.Fatalf("decision = %s, want CONDITIONAL", result.Decision)
	}
}

func TestEvaluateMissingQuantityDefaults(t *testing.T) {
	// A request with no quantity assumes the default of 30, which is
	// within this item's limits.
	result := Evaluate(nil, []catalog.Medicine{med("Paracetamol", 500, 60)}, false)
	if result.Decision != DecisionApprove {
		t.Fatalf("decision = %s, want APPROVE", result.Decision)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	requests := []Request{{Name: "Tramadol", Quantity: 50}}
	ctrl := med("Tramadol", 10, 20)
	ctrl.ControlledSubstance = true
	matches := []catalog.Medicine{ctrl}

	first := Evaluate(requests, matches, true)
	for i := 0; i < 10; i++ {
		if got := Evaluate(requests, matches, true); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

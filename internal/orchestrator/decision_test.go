package orchestrator

import "testing"

func TestPayloadFromEvidence(t *testing.T) {
	p := PayloadFromEvidence([]string{
		"Medicine: Paracetamol",
		"Strength: 500mg",
		"Quantity: 20",
		"Price: $0.15",
		"Stock: 500",
		"Requires Prescription: Yes",
	})

	if p.Medicine != "Paracetamol" {
		t.Errorf("medicine = %q", p.Medicine)
	}
	if p.Strength != "500mg" {
		t.Errorf("strength = %q", p.Strength)
	}
	if p.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", p.Quantity)
	}
	if p.UnitPrice != 0.15 {
		t.Errorf("price = %v, want 0.15", p.UnitPrice)
	}
	if p.Stock != 500 {
		t.Errorf("stock = %d, want 500", p.Stock)
	}
	if !p.RequiresPrescription {
		t.Error("expected requires prescription")
	}
}

func TestPayloadQuantitySuffix(t *testing.T) {
	p := PayloadFromEvidence([]string{"Quantity: 30x"})
	if p.Quantity != 30 {
		t.Errorf("quantity = %d, want 30", p.Quantity)
	}
}

func TestPayloadQuantityDefault(t *testing.T) {
	cases := []string{"Quantity: a few", "Quantity: -2", "Quantity:"}
	for _, ev := range cases {
		if p := PayloadFromEvidence([]string{ev}); p.Quantity != DefaultQuantity {
			t.Errorf("%q: quantity = %d, want %d", ev, p.Quantity, DefaultQuantity)
		}
	}

	// No quantity evidence at all keeps the default too
	if p := PayloadFromEvidence(nil); p.Quantity != DefaultQuantity {
		t.Errorf("empty evidence: quantity = %d, want %d", p.Quantity, DefaultQuantity)
	}
}

func TestPayloadSkipsMalformedEntries(t *testing.T) {
	p := PayloadFromEvidence([]string{
		"no colon here",
		"Medicine: Ibuprofen",
		"dosage: 400mg",
	})
	if p.Medicine != "Ibuprofen" {
		t.Errorf("medicine = %q", p.Medicine)
	}
	if p.Strength != "400mg" {
		t.Errorf("strength = %q", p.Strength)
	}
}

func TestPayloadMergeLaterHopsWin(t *testing.T) {
	p := PayloadFromEvidence([]string{"Medicine: Paracetamol", "Quantity: 20"})
	p.Merge([]string{"Quantity: 10", "Confirmed: true"})

	if p.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", p.Quantity)
	}
	if p.Medicine != "Paracetamol" {
		t.Errorf("medicine = %q, want untouched", p.Medicine)
	}
	if !p.Confirmed {
		t.Error("expected confirmed")
	}
}

func TestDecisionTerminalAndReply(t *testing.T) {
	d := &AgentDecision{Decision: DecisionNeedsInfo, Reason: "Which medicine do you need?"}
	if !d.Terminal() {
		t.Error("NEEDS_INFO should be terminal")
	}
	if d.Reply() != "Which medicine do you need?" {
		t.Errorf("reply = %q", d.Reply())
	}

	d.Message = "Could you tell me the medicine name?"
	if d.Reply() != "Could you tell me the medicine name?" {
		t.Errorf("reply = %q, want message to win", d.Reply())
	}

	approved := &AgentDecision{Decision: DecisionApproved}
	if approved.Terminal() {
		t.Error("APPROVED should not be terminal")
	}
}

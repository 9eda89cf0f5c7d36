package order

import (
	"errors"
	"testing"
	"time"
)

func createdData(id string) *OrderCreatedData {
	return &OrderCreatedData{
		OrderID:     id,
		PatientID:   "PAT001",
		PatientName: "Asha Verma",
		Items: []Item{
			{MedicineID: "MED001", MedicineName: "Paracetamol", Strength: "500mg", Quantity: 2, UnitPrice: 0.15},
		},
		TotalAmount: 0.30,
		CreatedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func confirmedAggregate(t *testing.T, id string) *Aggregate {
	t.Helper()
	agg := NewAggregate(id)
	if err := agg.Create(createdData(id)); err != nil {
		t.Fatal(err)
	}
	if err := agg.RecordValidation("APPROVE", []string{"All safety checks passed."}, "Safety validated"); err != nil {
		t.Fatal(err)
	}
	if err := agg.Confirm("Patient confirmed"); err != nil {
		t.Fatal(err)
	}
	return agg
}

func TestConfirmationSequence(t *testing.T) {
	agg := confirmedAggregate(t, "ORD-1")

	if err := agg.RecordInventoryUpdate(2); err != nil {
		t.Fatal(err)
	}
	if err := agg.StartProcessing("Fulfillment started"); err != nil {
		t.Fatal(err)
	}

	if agg.Status() != StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", agg.Status())
	}
	if agg.Version() != 5 {
		t.Errorf("version = %d, want 5", agg.Version())
	}

	wantTypes := []EventType{
		EventOrderCreated,
		EventSafetyValidated,
		EventOrderConfirmed,
		EventInventoryUpdated,
		EventFulfillmentStarted,
	}
	changes := agg.Changes()
	if len(changes) != len(wantTypes) {
		t.Fatalf("got %d changes, want %d", len(changes), len(wantTypes))
	}
	for i, e := range changes {
		if e.EventType != wantTypes[i] {
			t.Errorf("change %d = %s, want %s", i, e.EventType, wantTypes[i])
		}
		if e.Version != i+1 {
			t.Errorf("change %d version = %d, want %d", i, e.Version, i+1)
		}
	}
}

func TestGuardsRejectSkippedSteps(t *testing.T) {
	agg := NewAggregate("ORD-2")
	if err := agg.Create(createdData("ORD-2")); err != nil {
		t.Fatal(err)
	}

	// Confirm before validation
	var invalid *InvalidTransitionError
	if err := agg.Confirm("too early"); !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != StatusPending || invalid.To != StatusConfirmed {
		t.Errorf("transition = %s -> %s", invalid.From, invalid.To)
	}

	// Processing before confirmation
	if err := agg.StartProcessing("too early"); !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}

	// Double create
	if err := agg.Create(createdData("ORD-2")); err == nil {
		t.Error("second Create succeeded")
	}
}

func TestInventoryUpdateOnlyWhileConfirmed(t *testing.T) {
	agg := NewAggregate("ORD-3")
	if err := agg.Create(createdData("ORD-3")); err != nil {
		t.Fatal(err)
	}
	if err := agg.RecordInventoryUpdate(2); err == nil {
		t.Error("inventory update allowed in PENDING")
	}

	agg = confirmedAggregate(t, "ORD-3")
	if err := agg.RecordInventoryUpdate(2); err != nil {
		t.Errorf("inventory update in CONFIRMED failed: %v", err)
	}
	if agg.Status() != StatusConfirmed {
		t.Errorf("status changed by inventory update: %s", agg.Status())
	}
}

func TestCancelLifecycle(t *testing.T) {
	agg := confirmedAggregate(t, "ORD-4")
	if err := agg.Cancel("Patient changed their mind"); err != nil {
		t.Fatal(err)
	}
	if agg.Status() != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", agg.Status())
	}

	// Cancelled is terminal
	if err := agg.Cancel("again"); err == nil {
		t.Error("cancelling a cancelled order succeeded")
	}

	// Completed is terminal too
	agg = confirmedAggregate(t, "ORD-5")
	if err := agg.StartProcessing(""); err != nil {
		t.Fatal(err)
	}
	if err := agg.MarkPreparing(""); err != nil {
		t.Fatal(err)
	}
	if err := agg.MarkShipped(""); err != nil {
		t.Fatal(err)
	}
	if err := agg.Complete(""); err != nil {
		t.Fatal(err)
	}
	if err := agg.Cancel("too late"); err == nil {
		t.Error("cancelling a completed order succeeded")
	}
}

func TestLoadFromHistoryRebuildsState(t *testing.T) {
	agg := confirmedAggregate(t, "ORD-6")
	if err := agg.StartProcessing("Fulfillment started"); err != nil {
		t.Fatal(err)
	}

	rebuilt := NewAggregate("ORD-6")
	rebuilt.LoadFromHistory(agg.Changes())

	if rebuilt.Status() != StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", rebuilt.Status())
	}
	if rebuilt.Version() != agg.Version() {
		t.Errorf("version = %d, want %d", rebuilt.Version(), agg.Version())
	}
	if rebuilt.PatientID() != "PAT001" {
		t.Errorf("patient = %s", rebuilt.PatientID())
	}
	if rebuilt.TotalAmount() != 0.30 {
		t.Errorf("total = %v, want 0.30", rebuilt.TotalAmount())
	}
	if len(rebuilt.Items()) != 1 {
		t.Fatalf("items = %d, want 1", len(rebuilt.Items()))
	}

	// Rehydration does not produce new uncommitted events
	if len(rebuilt.Changes()) != 0 {
		t.Errorf("rebuilt has %d uncommitted changes", len(rebuilt.Changes()))
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.30000000000000004, 0.30},
		{0.308, 0.31},
		{2.3175, 2.32},
		{0, 0},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

package refill

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
)

type scriptedService struct {
	result *reasoning.Result
	err    error
}

func (s *scriptedService) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Result, error) {
	return s.result, s.err
}

func fixedPredictor(svc reasoning.Service, at time.Time) *Predictor {
	p := NewPredictor(svc, nil)
	p.now = func() time.Time { return at }
	return p
}

func record(name string, daysAgo, supplyDays int, at time.Time) catalog.OrderRecord {
	return catalog.OrderRecord{
		OrderID:      "ORD-test",
		PatientID:    "PAT001",
		MedicineID:   "MED001",
		MedicineName: name,
		Quantity:     30,
		PurchaseDate: at.AddDate(0, 0, -daysAgo),
		SupplyDays:   supplyDays,
		Status:       "COMPLETED",
	}
}

func TestPredictFallbackRemind(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := fixedPredictor(nil, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 25, 30, now),
	})

	if len(preds) != 1 {
		t.Fatalf("got %d predictions, want 1", len(preds))
	}
	got := preds[0]
	if got.DaysRemaining != 5 {
		t.Errorf("days remaining = %d, want 5", got.DaysRemaining)
	}
	if got.Action != ActionRemind {
		t.Errorf("action = %s, want REMIND", got.Action)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
	if got.Reason != "Deterministic calculation" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestPredictFallbackClampsNegative(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := fixedPredictor(nil, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 60, 30, now),
	})

	if preds[0].DaysRemaining != 0 {
		t.Errorf("days remaining = %d, want 0", preds[0].DaysRemaining)
	}
	if preds[0].Action != ActionRemind {
		t.Errorf("action = %s, want REMIND", preds[0].Action)
	}
}

func TestPredictFallbackNone(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := fixedPredictor(nil, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 5, 30, now),
	})

	if preds[0].Action != ActionNone {
		t.Errorf("action = %s, want NONE", preds[0].Action)
	}
	if preds[0].DaysRemaining != 25 {
		t.Errorf("days remaining = %d, want 25", preds[0].DaysRemaining)
	}
}

func TestPredictEmptyHistory(t *testing.T) {
	p := fixedPredictor(nil, time.Now())
	if preds := p.Predict(context.Background(), "Asha Verma", nil); preds != nil {
		t.Errorf("got %v, want nil", preds)
	}
}

func TestPredictServiceErrorFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := &scriptedService{err: errors.New("timeout")}
	p := fixedPredictor(svc, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 28, 30, now),
	})

	if len(preds) != 1 || preds[0].Reason != "Deterministic calculation" {
		t.Fatalf("expected deterministic fallback, got %+v", preds)
	}
}

func TestPredictMalformedArgumentsFallsBack(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := &scriptedService{result: &reasoning.Result{
		Calls: []reasoning.ToolCall{{Name: "analyze_refills", Arguments: json.RawMessage(`{"predictions": "nope"}`)}},
	}}
	p := fixedPredictor(svc, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 28, 30, now),
	})

	if len(preds) != 1 || preds[0].Reason != "Deterministic calculation" {
		t.Fatalf("expected deterministic fallback, got %+v", preds)
	}
}

func TestPredictUsesServicePredictions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	args, _ := json.Marshal(map[string]any{
		"predictions": []Prediction{{
			Medicine:      "Metformin",
			DaysRemaining: 3,
			Action:        ActionRemind,
			Confidence:    0.9,
			Reason:        "Usage pattern suggests early refill",
		}},
	})
	svc := &scriptedService{result: &reasoning.Result{
		Calls: []reasoning.ToolCall{{Name: "analyze_refills", Arguments: args}},
	}}
	p := fixedPredictor(svc, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Metformin", 10, 30, now),
	})

	if len(preds) != 1 || preds[0].Confidence != 0.9 {
		t.Fatalf("expected service prediction, got %+v", preds)
	}
}

func TestPredictAcceptsBlockAndAutoRefill(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	args, _ := json.Marshal(map[string]any{
		"predictions": []Prediction{
			{
				Medicine:      "Amoxicillin",
				DaysRemaining: 0,
				Action:        ActionBlock,
				Confidence:    0.95,
				Reason:        "Prescription exhausted, pharmacist review required",
			},
			{
				Medicine:      "Metformin",
				DaysRemaining: 4,
				Action:        ActionAutoRefill,
				Confidence:    0.9,
				Reason:        "Enrolled in automatic refills",
			},
		},
	})
	svc := &scriptedService{result: &reasoning.Result{
		Calls: []reasoning.ToolCall{{Name: "analyze_refills", Arguments: args}},
	}}
	p := fixedPredictor(svc, now)

	preds := p.Predict(context.Background(), "Asha Verma", []catalog.OrderRecord{
		record("Amoxicillin", 35, 30, now),
		record("Metformin", 26, 30, now),
	})

	if len(preds) != 2 {
		t.Fatalf("got %d predictions, want 2", len(preds))
	}
	if preds[0].Action != ActionBlock {
		t.Errorf("action = %s, want BLOCK", preds[0].Action)
	}
	if preds[1].Action != ActionAutoRefill {
		t.Errorf("action = %s, want AUTO_REFILL", preds[1].Action)
	}
}

func TestScanAllKeepsActionableOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	patients := catalog.NewMemoryPatientStore(catalog.SeedPatients())

	ctx := context.Background()
	// Running low: 28 of 30 supply days elapsed
	if err := patients.AddOrderRecord(ctx, record("Metformin", 28, 30, now)); err != nil {
		t.Fatal(err)
	}

	p := fixedPredictor(nil, now)
	results, err := p.ScanAll(ctx, patients)
	if err != nil {
		t.Fatal(err)
	}

	preds, ok := results["PAT001"]
	if !ok {
		t.Fatalf("expected predictions for PAT001, got %v", results)
	}
	for _, pred := range preds {
		if pred.Action == ActionNone {
			t.Errorf("ScanAll kept non-actionable prediction: %+v", pred)
		}
	}
}

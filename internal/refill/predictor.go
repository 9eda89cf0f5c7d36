// Package refill predicts when patients run out of medication based on their
// purchase history.
package refill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
)

// Action is the recommended followup for a prediction. REMIND and BLOCK are
// surfaced to the patient; AUTO_REFILL is handled by the scanner alone.
const (
	ActionNone       = "NONE"
	ActionRemind     = "REMIND"
	ActionAutoRefill = "AUTO_REFILL"
	ActionBlock      = "BLOCK"
)

// Prediction is a refill forecast for one medication.
type Prediction struct {
	Medicine      string  `json:"medicine"`
	DaysRemaining int     `json:"days_remaining"`
	Action        string  `json:"action"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

const analyzeTool = "analyze_refills"

var analyzeSchema = reasoning.ToolSchema{
	Name:        analyzeTool,
	Description: "Record refill predictions for the patient's medication history.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"predictions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"medicine":       map[string]any{"type": "string"},
						"days_remaining": map[string]any{"type": "integer"},
						"action":         map[string]any{"type": "string", "enum": []string{ActionNone, ActionRemind, ActionAutoRefill, ActionBlock}},
						"confidence":     map[string]any{"type": "number"},
						"reason":         map[string]any{"type": "string"},
					},
					"required": []string{"medicine", "days_remaining", "action", "confidence", "reason"},
				},
			},
		},
		"required": []string{"predictions"},
	},
}

const systemPrompt = `You are a refill intelligence assistant for a pharmacy.
Analyze the patient's medication purchase history and forecast refill needs.

ANALYSIS RULES:
1. Calculate days remaining for each medication from purchase date and supply days.
2. If the medication requires a prescription and the patient has fully run out: action BLOCK.
3. If the patient is enrolled in automatic refills and remaining days <= 5: action AUTO_REFILL.
4. Otherwise if remaining days <= 5: action REMIND.
5. Otherwise: action NONE.

Record your predictions with the analyze_refills tool.`

// Predictor forecasts refill needs. It asks the reasoning service first and
// falls back to a deterministic calculation when the service fails or returns
// nothing usable.
type Predictor struct {
	svc       reasoning.Service
	now       func() time.Time
	logger    *zap.Logger
	fallbacks prometheus.Counter
}

// NewPredictor creates a predictor. svc may be nil, in which case only the
// deterministic path runs.
func NewPredictor(svc reasoning.Service, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{svc: svc, now: time.Now, logger: logger}
}

// CountFallbacks increments c whenever a prediction is served by the
// deterministic path instead of the reasoning service.
func (p *Predictor) CountFallbacks(c prometheus.Counter) {
	p.fallbacks = c
}

// Predict forecasts refill needs for one patient's history.
func (p *Predictor) Predict(ctx context.Context, patientName string, history []catalog.OrderRecord) []Prediction {
	if len(history) == 0 {
		return nil
	}
	if p.svc == nil {
		return p.fallback(history)
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return p.fallback(history)
	}

	req := reasoning.Request{
		System: systemPrompt,
		Messages: []reasoning.Message{{
			Role:    reasoning.RoleUser,
			Content: fmt.Sprintf("Analyze refill needs for patient %s based on this history:\n%s", patientName, historyJSON),
		}},
		Tools:       []reasoning.ToolSchema{analyzeSchema},
		ForceTool:   analyzeTool,
		Temperature: 0.2,
	}

	res, err := p.svc.Complete(ctx, req)
	if err != nil {
		p.logger.Warn("refill analysis failed, using deterministic fallback", zap.Error(err))
		return p.fallback(history)
	}

	call, err := res.ForcedCall(analyzeTool)
	if err != nil {
		return p.fallback(history)
	}

	var out struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := reasoning.DecodeArguments(call, &out); err != nil {
		p.logger.Warn("refill analysis returned malformed arguments", zap.Error(err))
		return p.fallback(history)
	}
	if len(out.Predictions) == 0 {
		return p.fallback(history)
	}
	return out.Predictions
}

// fallback computes predictions directly from supply days and elapsed time.
func (p *Predictor) fallback(history []catalog.OrderRecord) []Prediction {
	if p.fallbacks != nil {
		p.fallbacks.Inc()
	}
	predictions := make([]Prediction, 0, len(history))
	for _, rec := range history {
		if rec.PurchaseDate.IsZero() {
			continue
		}
		supply := rec.SupplyDays
		if supply == 0 {
			supply = 30
		}
		daysSince := int(p.now().Sub(rec.PurchaseDate).Hours() / 24)
		remaining := supply - daysSince
		if remaining < 0 {
			remaining = 0
		}

		action := ActionNone
		if remaining <= 5 {
			action = ActionRemind
		}

		predictions = append(predictions, Prediction{
			Medicine:      rec.MedicineName,
			DaysRemaining: remaining,
			Action:        action,
			Confidence:    1.0,
			Reason:        "Deterministic calculation",
		})
	}
	return predictions
}

// ScanAll forecasts refills across every patient, keeping only predictions
// that need action. Used by the proactive scanner.
func (p *Predictor) ScanAll(ctx context.Context, patients catalog.PatientStore) (map[string][]Prediction, error) {
	all, err := patients.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	out := make(map[string][]Prediction)
	for _, patient := range all {
		due, err := patients.GetMedicinesNeedingRefill(ctx, patient.ID, p.now())
		if err != nil {
			return nil, fmt.Errorf("refill candidates for %s: %w", patient.ID, err)
		}
		if len(due) == 0 {
			continue
		}
		preds := p.Predict(ctx, patient.Name, due)
		var actionable []Prediction
		for _, pred := range preds {
			if pred.Action != ActionNone {
				actionable = append(actionable, pred)
			}
		}
		if len(actionable) > 0 {
			out[patient.ID] = actionable
		}
	}
	return out, nil
}

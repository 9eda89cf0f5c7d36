package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/safety"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// Assembler runs the order-assembly pipeline: extraction, catalog matching,
// safety evaluation, preview construction. On success the session always ends
// in a requires-confirmation state; the pipeline never commits an order.
type Assembler struct {
	extractor *Extractor
	store     catalog.Store
	prices    *catalog.PriceTable
	sessions  session.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAssembler wires the pipeline's collaborators.
func NewAssembler(extractor *Extractor, store catalog.Store, prices *catalog.PriceTable, sessions session.Store, m *metrics.Metrics, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		extractor: extractor,
		store:     store,
		prices:    prices,
		sessions:  sessions,
		metrics:   m,
		logger:    logger,
	}
}

// Assemble produces an order preview for the turn's message, or a
// clarification or rejection reply. A failed collaborator call never leaves a
// half-built preview behind.
func (a *Assembler) Assemble(ctx context.Context, t *Turn) (*Response, error) {
	extraction, err := a.extractor.Extract(ctx, t.Request.Message, t.RecentOrders, t.History)
	if err != nil {
		return nil, err
	}

	if extraction.NeedsClarification {
		msg := extraction.ClarificationMessage
		if msg == "" {
			msg = "Could you tell me a bit more about what you need?"
		}
		return &Response{Message: msg, ExtractedEntities: extraction}, nil
	}
	if len(extraction.Entities) == 0 {
		return &Response{
			Message:           "I couldn't identify any medications in your request. Could you please specify which medicine you need?",
			ExtractedEntities: extraction,
		}, nil
	}

	// Match entities against the catalog. Entities with no results are
	// dropped; the pipeline fails only when nothing matched at all.
	var (
		matched  []catalog.Medicine
		requests []safety.Request
	)
	for _, entity := range extraction.Entities {
		results, err := a.store.Search(ctx, entity.Medicine)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			a.logger.Debug("no catalog match for entity", zap.String("medicine", entity.Medicine))
			continue
		}
		matched = append(matched, bestMatch(results, entity.Dosage))
		requests = append(requests, safety.Request{Name: entity.Medicine, Quantity: entity.Quantity})
	}
	if len(matched) == 0 {
		return &Response{
			Message: fmt.Sprintf("I couldn't find '%s' in our inventory. Please check the spelling or try a different medication.",
				extraction.Entities[0].Medicine),
			ExtractedEntities: extraction,
		}, nil
	}

	result := safety.Evaluate(requests, matched, false)
	if result.Decision == safety.DecisionReject {
		a.metrics.PolicyRejections.Inc()
		return &Response{
			Message:           fmt.Sprintf("I'm sorry, but I cannot process this order. %s", strings.Join(result.Reasons, " ")),
			ExtractedEntities: extraction,
			SafetyResult:      &result,
		}, nil
	}

	preview := a.buildPreview(t.Patient, requests, matched, result)

	replaced, err := a.sessions.SavePreview(ctx, t.Request.Session(), preview)
	if err != nil {
		return nil, err
	}
	a.metrics.PreviewsCreated.Inc()
	if replaced != "" {
		a.metrics.PreviewsSuperseded.Inc()
	} else {
		a.metrics.PendingPreviews.Inc()
	}

	resp := &Response{
		Message:              a.previewMessage(preview, result, replaced),
		ExtractedEntities:    extraction,
		SafetyResult:         &result,
		OrderPreview:         preview,
		RequiresConfirmation: true,
	}
	a.logger.Info("order preview created",
		zap.String("preview_id", preview.PreviewID),
		zap.String("session_id", t.Request.Session()),
		zap.Float64("total", preview.TotalAmount),
		zap.String("superseded", replaced),
	)
	return resp, nil
}

func (a *Assembler) buildPreview(patient catalog.Patient, requests []safety.Request, matched []catalog.Medicine, result safety.Result) *order.Preview {
	items := make([]order.Item, 0, len(matched))
	var subtotal float64
	for i, med := range matched {
		quantity := safety.DefaultQuantity
		if requests[i].Quantity > 0 {
			quantity = requests[i].Quantity
		}
		if result.AllowedQuantity > 0 && result.AllowedQuantity < quantity {
			quantity = result.AllowedQuantity
		}

		price := a.prices.Price(med.Name)
		items = append(items, order.Item{
			MedicineID:           med.ID,
			MedicineName:         med.Name,
			Strength:             med.Strength,
			Quantity:             quantity,
			UnitPrice:            price,
			PrescriptionRequired: med.PrescriptionRequired,
		})
		subtotal += price * float64(quantity)
	}

	return &order.Preview{
		PreviewID:            order.NewPreviewID(),
		PatientID:            patient.ID,
		PatientName:          patient.Name,
		Items:                items,
		TotalAmount:          order.Round2(subtotal),
		SafetyDecision:       result.Decision,
		SafetyReasons:        result.Reasons,
		RequiresPrescription: result.RequiresPrescription,
		CreatedAt:            time.Now(),
	}
}

func (a *Assembler) previewMessage(p *order.Preview, result safety.Result, replaced string) string {
	var b strings.Builder
	if replaced != "" {
		b.WriteString("I've replaced your previous pending order.\n\n")
	}

	summary := itemsSummary(p.Items)
	if result.Decision == safety.DecisionConditional {
		fmt.Fprintf(&b, "I can prepare your order for %s. However: %s\n\nWould you like to proceed? Reply 'confirm' to place the order or 'cancel' to cancel.",
			summary, strings.Join(result.Reasons, " "))
	} else {
		fmt.Fprintf(&b, "Great! I've prepared your order for %s.\n\nEstimated total: $%.2f\n\nPlease reply 'confirm' to place the order or 'cancel' to cancel.",
			summary, p.TotalAmount)
	}
	return b.String()
}

func itemsSummary(items []order.Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s %s x%d", it.MedicineName, it.Strength, it.Quantity))
	}
	return strings.Join(parts, ", ")
}

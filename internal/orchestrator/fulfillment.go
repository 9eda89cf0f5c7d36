package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/safety"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// fulfillmentCollaborator is the terminal hop of the inventory/policy chain.
// It builds an order preview from the typed payload, or hands a confirmed
// payload straight to the confirmation handler.
type fulfillmentCollaborator struct {
	store     catalog.Store
	prices    *catalog.PriceTable
	sessions  session.Store
	confirmer *Confirmer
	metrics   *metrics.Metrics
}

func (c *fulfillmentCollaborator) Name() string { return "fulfillment" }

func (c *fulfillmentCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	if t.Payload.Confirmed {
		resp, err := c.confirmer.Confirm(ctx, t)
		if err != nil {
			return nil, err
		}
		t.Response = resp
		return &AgentDecision{
			Agent:    c.Name(),
			Decision: DecisionApproved,
			Reason:   "Order placed.",
		}, nil
	}

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

	price := t.Payload.UnitPrice
	if price == 0 {
		price = c.prices.Price(med.Name)
	}
	quantity := t.Payload.Quantity
	if quantity <= 0 {
		quantity = DefaultQuantity
	}
	item := order.Item{
		MedicineID:           med.ID,
		MedicineName:         med.Name,
		Strength:             med.Strength,
		Quantity:             quantity,
		UnitPrice:            price,
		PrescriptionRequired: med.PrescriptionRequired,
	}

	preview := &order.Preview{
		PreviewID:            order.NewPreviewID(),
		PatientID:            t.Patient.ID,
		PatientName:          t.Patient.Name,
		Items:                []order.Item{item},
		TotalAmount:          order.Round2(price * float64(item.Quantity)),
		SafetyDecision:       safety.DecisionApprove,
		RequiresPrescription: t.Payload.RequiresPrescription,
		CreatedAt:            time.Now(),
	}

	replaced, err := c.sessions.SavePreview(ctx, t.Request.Session(), preview)
	if err != nil {
		return nil, err
	}
	c.metrics.PreviewsCreated.Inc()
	if replaced != "" {
		c.metrics.PreviewsSuperseded.Inc()
	} else {
		c.metrics.PendingPreviews.Inc()
	}

	msg := fmt.Sprintf("Good news! We have %d %s in stock ($%.2f/unit). Safety checks passed.\n\nReply 'confirm' to place this order.",
		item.Quantity, med.Name, price)
	if replaced != "" {
		msg = "I've replaced your previous pending order.\n\n" + msg
	}
	t.Response = &Response{
		Message:              msg,
		OrderPreview:         preview,
		RequiresConfirmation: true,
	}

	return &AgentDecision{
		Agent:    c.Name(),
		Decision: DecisionApproved,
		Reason:   "Order preview ready for confirmation.",
		Evidence: []string{
			fmt.Sprintf("Medicine: %s", med.Name),
			fmt.Sprintf("Quantity: %d", item.Quantity),
			fmt.Sprintf("Price: %.2f", price),
		},
	}, nil
}

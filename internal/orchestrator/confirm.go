package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// Order totals shown to the user: subtotal plus a fixed tax rate and a flat
// delivery fee, each amount rounded to two decimals.
const (
	TaxRate     = 0.05
	DeliveryFee = 2.00
)

// Receipt is the artifact generated on confirmation.
type Receipt struct {
	Number   string `json:"receipt_number"`
	ThankYou string `json:"thank_you_message"`
}

// Confirmer promotes a pending preview to a committed order, or discards it.
type Confirmer struct {
	sessions  session.Store
	repo      order.Repository
	store     catalog.Store
	patients  catalog.PatientStore
	predictor *refill.Predictor
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewConfirmer wires the confirmation handler.
func NewConfirmer(sessions session.Store, repo order.Repository, store catalog.Store, patients catalog.PatientStore, predictor *refill.Predictor, m *metrics.Metrics, logger *zap.Logger) *Confirmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confirmer{
		sessions:  sessions,
		repo:      repo,
		store:     store,
		patients:  patients,
		predictor: predictor,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Confirm converts the session's pending preview into a committed order. The
// lifecycle records VALIDATED, CONFIRMED, the inventory side event, and
// PROCESSING as distinct ordered events.
func (c *Confirmer) Confirm(ctx context.Context, t *Turn) (*Response, error) {
	sessionID := t.Request.Session()

	preview, err := c.sessions.TakePreview(ctx, sessionID)
	if errors.Is(err, session.ErrNoPendingOrder) {
		return &Response{Message: "I don't see any pending order to confirm. Would you like to place a new order?"}, nil
	}
	if err != nil {
		return nil, err
	}
	c.metrics.PendingPreviews.Dec()

	orderID := order.NewOrderID()
	agg := order.NewAggregate(orderID)
	if err := agg.Create(&order.OrderCreatedData{
		OrderID:      orderID,
		PatientID:    preview.PatientID,
		PatientName:  preview.PatientName,
		PatientEmail: t.Patient.Email,
		PatientPhone: t.Patient.Phone,
		Items:        preview.Items,
		TotalAmount:  preview.TotalAmount,
		PreviewID:    preview.PreviewID,
		CreatedAt:    c.now().UTC(),
	}); err != nil {
		return nil, c.restorePreview(ctx, sessionID, preview, err)
	}

	if err := agg.RecordValidation(string(preview.SafetyDecision), preview.SafetyReasons, "Safety validation completed"); err != nil {
		return nil, c.restorePreview(ctx, sessionID, preview, err)
	}
	if err := agg.Confirm("Order confirmed by patient"); err != nil {
		return nil, c.restorePreview(ctx, sessionID, preview, err)
	}

	// Decrement stock per item before the order is persisted, so a depleted
	// shelf fails the whole confirmation.
	totalQuantity := 0
	for _, item := range preview.Items {
		if err := c.store.UpdateStock(ctx, item.MedicineID, -item.Quantity); err != nil {
			return nil, c.restorePreview(ctx, sessionID, preview, fmt.Errorf("update stock for %s: %w", item.MedicineName, err))
		}
		totalQuantity += item.Quantity
	}

	if err := agg.RecordInventoryUpdate(totalQuantity); err != nil {
		return nil, err
	}
	if err := agg.StartProcessing("Order is being processed for delivery"); err != nil {
		return nil, err
	}

	if err := c.repo.Save(ctx, agg); err != nil {
		return nil, fmt.Errorf("save order %s: %w", orderID, err)
	}
	c.metrics.OrdersConfirmed.Inc()

	// Order history feeds future refill predictions.
	purchaseDate := c.now()
	for _, item := range preview.Items {
		rec := catalog.OrderRecord{
			OrderID:      orderID,
			PatientID:    preview.PatientID,
			MedicineID:   item.MedicineID,
			MedicineName: item.MedicineName,
			Strength:     item.Strength,
			Quantity:     item.Quantity,
			PurchaseDate: purchaseDate,
			SupplyDays:   30,
			Status:       string(order.StatusProcessing),
		}
		if err := c.patients.AddOrderRecord(ctx, rec); err != nil {
			c.logger.Warn("failed to append order history", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	receipt := Receipt{
		Number:   order.NewReceiptNumber(),
		ThankYou: fmt.Sprintf("Thank you for your order, %s! Your medications are on their way.", preview.PatientName),
	}

	resp := &Response{
		Message: c.confirmationMessage(orderID, preview, receipt, c.advisory(ctx, preview)),
		Order:   viewFromAggregate(agg),
	}

	c.logger.Info("order confirmed",
		zap.String("order_id", orderID),
		zap.String("preview_id", preview.PreviewID),
		zap.String("patient_id", preview.PatientID),
		zap.Float64("subtotal", preview.TotalAmount),
	)
	return resp, nil
}

// restorePreview puts the preview back so a failed confirmation leaves the
// session exactly as it was.
func (c *Confirmer) restorePreview(ctx context.Context, sessionID string, preview *order.Preview, cause error) error {
	if _, err := c.sessions.SavePreview(ctx, sessionID, preview); err != nil {
		c.logger.Error("failed to restore preview after confirmation error",
			zap.String("session_id", sessionID), zap.Error(err))
		return cause
	}
	c.metrics.PendingPreviews.Inc()
	return cause
}

// advisory checks the patient's other medications for due refills, excluding
// what was just ordered.
func (c *Confirmer) advisory(ctx context.Context, preview *order.Preview) string {
	due, err := c.patients.GetMedicinesNeedingRefill(ctx, preview.PatientID, c.now())
	if err != nil {
		c.logger.Warn("refill advisory lookup failed", zap.Error(err))
		return ""
	}

	ordered := make(map[string]bool, len(preview.Items))
	for _, item := range preview.Items {
		ordered[item.MedicineID] = true
	}
	var remaining []catalog.OrderRecord
	for _, rec := range due {
		if !ordered[rec.MedicineID] {
			remaining = append(remaining, rec)
		}
	}
	if len(remaining) == 0 {
		return ""
	}

	var urgent []refill.Prediction
	for _, pred := range c.predictor.Predict(ctx, preview.PatientName, remaining) {
		if pred.Action == refill.ActionRemind || pred.Action == refill.ActionBlock {
			urgent = append(urgent, pred)
		}
	}
	if len(urgent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nWhile reviewing your records, I noticed you are also running low on:\n")
	for _, pred := range urgent {
		fmt.Fprintf(&b, "- %s (%d days remaining)\n", pred.Medicine, pred.DaysRemaining)
	}
	b.WriteString("\nWould you like to add these to a new order?")
	return b.String()
}

func (c *Confirmer) confirmationMessage(orderID string, preview *order.Preview, receipt Receipt, advisory string) string {
	subtotal := preview.TotalAmount
	tax := order.Round2(subtotal * TaxRate)
	grandTotal := order.Round2(subtotal + subtotal*TaxRate + DeliveryFee)
	nextRefill := c.now().AddDate(0, 0, 30).Format("January 2, 2006")

	return fmt.Sprintf(`Order Confirmed!

Order ID: %s
Items: %s
Subtotal: $%.2f
Tax (5%%): $%.2f
Delivery: $%.2f
Total: $%.2f

Receipt #: %s

%s

Based on this 30-day supply, I will remind you to refill around %s.%s`,
		orderID, itemsSummary(preview.Items), subtotal, tax, DeliveryFee, grandTotal,
		receipt.Number, receipt.ThankYou, nextRefill, advisory)
}

// Cancel discards the session's pending preview. Cancelling with nothing
// pending is not an error.
func (c *Confirmer) Cancel(ctx context.Context, t *Turn) (*Response, error) {
	cleared, err := c.sessions.ClearPending(ctx, t.Request.Session())
	if err != nil {
		return nil, err
	}
	if !cleared {
		return &Response{Message: "You don't have any pending order to cancel. Is there anything else I can help you with?"}, nil
	}
	c.metrics.OrdersCancelled.Inc()
	c.metrics.PendingPreviews.Dec()
	return &Response{Message: "Your order has been cancelled. Is there anything else I can help you with?"}, nil
}

func viewFromAggregate(agg *order.Aggregate) *OrderView {
	return &OrderView{
		OrderID:        agg.ID(),
		PatientID:      agg.PatientID(),
		PatientName:    agg.PatientName(),
		Items:          agg.Items(),
		TotalAmount:    agg.TotalAmount(),
		Status:         agg.Status(),
		PrescriptionID: agg.PrescriptionID(),
		CreatedAt:      agg.CreatedAt().Format(time.RFC3339),
	}
}

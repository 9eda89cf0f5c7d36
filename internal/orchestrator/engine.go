package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/observability/tracing"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// Engine is the top-level decision router. Each turn it classifies the
// inbound message, then drives the hand-off chain until a terminal decision
// or final response is produced.
type Engine struct {
	classifier *Classifier
	registry   *Registry
	sessions   session.Store
	patients   catalog.PatientStore
	locks      *sessionLocks
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Reasoning reasoning.Service
	Catalog   catalog.Store
	Patients  catalog.PatientStore
	Sessions  session.Store
	Orders    order.Repository
	Prices    *catalog.PriceTable
	Predictor *refill.Predictor
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// New wires the engine and its collaborator registry.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}

	extractor := NewExtractor(d.Reasoning)
	assembler := NewAssembler(extractor, d.Catalog, d.Prices, d.Sessions, d.Metrics, logger)
	confirmer := NewConfirmer(d.Sessions, d.Orders, d.Catalog, d.Patients, d.Predictor, d.Metrics, logger)

	registry := NewRegistry(
		&inventoryCollaborator{store: d.Catalog, prices: d.Prices},
		&policyCollaborator{store: d.Catalog},
		&fulfillmentCollaborator{store: d.Catalog, prices: d.Prices, sessions: d.Sessions, confirmer: confirmer, metrics: d.Metrics},
		&orderCollaborator{assembler: assembler},
		&confirmCollaborator{confirmer: confirmer},
		&cancelCollaborator{confirmer: confirmer},
		&refillCollaborator{patients: d.Patients, predictor: d.Predictor},
		&statusCollaborator{repo: d.Orders},
	)

	return &Engine{
		classifier: NewClassifier(d.Reasoning),
		registry:   registry,
		sessions:   d.Sessions,
		patients:   d.Patients,
		locks:      newSessionLocks(),
		metrics:    d.Metrics,
		logger:     logger,
	}
}

// HandleMessage processes one chat turn. Turns for the same session are
// serialized; turns for different sessions run concurrently.
func (e *Engine) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		e.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.Tracer("orchestrator").Start(ctx, "engine.handle_message")
	defer span.End()

	patient, err := e.patients.GetPatient(ctx, req.PatientID)
	if errors.Is(err, catalog.ErrNotFound) {
		return &Response{Message: "I couldn't find your patient record. Please select a valid patient."}, nil
	}
	if err != nil {
		return nil, err
	}

	release := e.locks.Acquire(req.Session())
	defer release()

	history, err := e.sessions.History(ctx, req.Session())
	if err != nil {
		return nil, err
	}

	t := &Turn{
		Request:      req,
		Patient:      patient,
		History:      history,
		RecentOrders: e.recentOrders(ctx, patient.ID),
	}

	resp := e.route(ctx, t)

	if err := e.sessions.AppendHistory(ctx, req.Session(), session.Turn{
		Role: "user", Content: req.Message, Timestamp: time.Now(),
	}); err != nil {
		e.logger.Warn("failed to append user turn", zap.Error(err))
	}
	if resp.Message != "" {
		if err := e.sessions.AppendHistory(ctx, req.Session(), session.Turn{
			Role: "assistant", Content: resp.Message, Timestamp: time.Now(),
		}); err != nil {
			e.logger.Warn("failed to append assistant turn", zap.Error(err))
		}
	}
	return resp, nil
}

// route obtains the initial decision and drives the chain. Collaborator
// failures degrade to a user-visible apology and never mutate committed
// state.
func (e *Engine) route(ctx context.Context, t *Turn) *Response {
	pendingSummary := e.pendingSummary(ctx, t.Request.Session())

	initial, err := e.classifier.Classify(ctx, t.Request.Message, e.patientContext(t), pendingSummary, t.History)
	if err != nil {
		return e.collaboratorFailure("classify", err)
	}
	t.Decisions = append(t.Decisions, initial)

	intent := initial.NextAgent
	if intent == "" {
		intent = "chat"
	}
	e.metrics.MessagesProcessed.WithLabelValues(intent).Inc()
	e.logger.Info("message classified",
		zap.String("session_id", t.Request.Session()),
		zap.String("intent", intent),
		zap.String("decision", initial.Decision),
	)

	if initial.Terminal() {
		return &Response{Message: initial.Reply(), Decisions: t.Decisions}
	}

	final, err := e.registry.Run(ctx, t, initial)
	if err != nil {
		var collab *reasoning.CollaboratorError
		if errors.As(err, &collab) {
			return e.collaboratorFailure(collab.Op, err)
		}
		return e.collaboratorFailure("chain", err)
	}

	if t.Response != nil {
		t.Response.Decisions = t.Decisions
		return t.Response
	}
	return &Response{Message: final.Reply(), Decisions: t.Decisions}
}

func (e *Engine) collaboratorFailure(op string, err error) *Response {
	e.metrics.CollaboratorFailures.WithLabelValues(op).Inc()
	e.logger.Error("collaborator failure", zap.String("op", op), zap.Error(err))
	return &Response{Message: fmt.Sprintf("I encountered an error processing your request. Error: %v", err)}
}

func (e *Engine) patientContext(t *Turn) string {
	return fmt.Sprintf("Name: %s\nID: %s\nRecent Orders: %s", t.Patient.Name, t.Patient.ID, t.RecentOrders)
}

// recentOrders summarizes the last few history rows for collaborator context.
func (e *Engine) recentOrders(ctx context.Context, patientID string) string {
	records, err := e.patients.GetOrderHistory(ctx, patientID)
	if err != nil || len(records) == 0 {
		return "none on file"
	}
	if len(records) > 5 {
		records = records[len(records)-5:]
	}
	parts := make([]string, 0, len(records))
	for _, rec := range records {
		parts = append(parts, fmt.Sprintf("%s %s x%d on %s", rec.MedicineName, rec.Strength, rec.Quantity, rec.PurchaseDate.Format("2006-01-02")))
	}
	return strings.Join(parts, "; ")
}

// pendingSummary describes the session's pending preview for the classifier.
func (e *Engine) pendingSummary(ctx context.Context, sessionID string) string {
	preview, err := e.sessions.PendingPreview(ctx, sessionID)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Items: %s\nTotal: $%.2f", itemsSummary(preview.Items), preview.TotalAmount)
}

// orderCollaborator is the terminal assembly-pipeline handler.
type orderCollaborator struct {
	assembler *Assembler
}

func (c *orderCollaborator) Name() string { return "order" }

func (c *orderCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	resp, err := c.assembler.Assemble(ctx, t)
	if err != nil {
		return nil, err
	}
	t.Response = resp

	decision := &AgentDecision{Agent: c.Name(), Decision: DecisionApproved, Reason: "Order pipeline completed."}
	if !resp.RequiresConfirmation {
		decision.Decision = DecisionNeedsInfo
		decision.Reason = "Order pipeline ended without a preview."
	}
	return decision, nil
}

// confirmCollaborator promotes the pending preview to a committed order.
type confirmCollaborator struct {
	confirmer *Confirmer
}

func (c *confirmCollaborator) Name() string { return "confirm" }

func (c *confirmCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	resp, err := c.confirmer.Confirm(ctx, t)
	if err != nil {
		return nil, err
	}
	t.Response = resp
	return &AgentDecision{Agent: c.Name(), Decision: DecisionApproved, Reason: "Confirmation handled."}, nil
}

// cancelCollaborator discards the pending preview.
type cancelCollaborator struct {
	confirmer *Confirmer
}

func (c *cancelCollaborator) Name() string { return "cancel" }

func (c *cancelCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	resp, err := c.confirmer.Cancel(ctx, t)
	if err != nil {
		return nil, err
	}
	t.Response = resp
	return &AgentDecision{Agent: c.Name(), Decision: DecisionApproved, Reason: "Cancellation handled."}, nil
}

// refillCollaborator answers refill status questions.
type refillCollaborator struct {
	patients  catalog.PatientStore
	predictor *refill.Predictor
}

func (c *refillCollaborator) Name() string { return "refill" }

func (c *refillCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	due, err := c.patients.GetMedicinesNeedingRefill(ctx, t.Patient.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		t.Response = &Response{Message: fmt.Sprintf(
			"Hi %s! I checked your medication history, and you don't have any refills due at the moment. All your medications should be well-stocked.",
			t.Patient.Name)}
		return &AgentDecision{Agent: c.Name(), Decision: DecisionScheduled, Reason: "No refills due."}, nil
	}

	predictions := c.predictor.Predict(ctx, t.Patient.Name, due)
	if len(predictions) == 0 {
		t.Response = &Response{Message: fmt.Sprintf(
			"Hi %s! Your medications are all looking good - no urgent refills needed right now.", t.Patient.Name)}
		return &AgentDecision{Agent: c.Name(), Decision: DecisionScheduled, Reason: "No predictions."}, nil
	}

	lines := make([]string, 0, len(predictions))
	remind := false
	for _, pred := range predictions {
		line := fmt.Sprintf("%s: %d days remaining", pred.Medicine, pred.DaysRemaining)
		if pred.Action == refill.ActionRemind {
			line += " (refill soon)"
			remind = true
		}
		lines = append(lines, line)
	}
	msg := fmt.Sprintf("Hi %s! Here's your medication refill status:\n\n%s", t.Patient.Name, strings.Join(lines, "\n"))
	if remind {
		msg += "\n\nWould you like me to prepare a refill order for any of these?"
	}

	t.Response = &Response{Message: msg, RefillSuggestions: predictions}
	return &AgentDecision{Agent: c.Name(), Decision: DecisionScheduled, Reason: "Refill status reported."}, nil
}

// statusCollaborator reports the patient's most recent order.
type statusCollaborator struct {
	repo order.Repository
}

func (c *statusCollaborator) Name() string { return "status" }

func (c *statusCollaborator) Decide(ctx context.Context, t *Turn) (*AgentDecision, error) {
	ids, err := c.repo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var latest *order.Aggregate
	for _, id := range ids {
		agg, err := c.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if agg.PatientID() != t.Patient.ID {
			continue
		}
		if latest == nil || agg.CreatedAt().After(latest.CreatedAt()) {
			latest = agg
		}
	}
	if latest == nil {
		t.Response = &Response{Message: "You don't have any recent orders. Would you like to place a new order?"}
		return &AgentDecision{Agent: c.Name(), Decision: DecisionNeedsInfo, Reason: "No orders on file."}, nil
	}

	msg := fmt.Sprintf("Order Status: %s\n\nStatus: %s\nItems: %s\nTotal: $%.2f\nOrdered: %s",
		latest.ID(), latest.Status(), itemsSummary(latest.Items()), latest.TotalAmount(),
		latest.CreatedAt().Format("2006-01-02 15:04"))
	t.Response = &Response{Message: msg, Order: viewFromAggregate(latest)}
	return &AgentDecision{Agent: c.Name(), Decision: DecisionApproved, Reason: "Status reported."}, nil
}

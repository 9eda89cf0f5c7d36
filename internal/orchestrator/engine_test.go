package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// scriptedService replays canned tool calls per forced tool, in order.
type scriptedService struct {
	t          *testing.T
	decisions  []*AgentDecision
	extracts   []*ExtractionResult
	err        error
	lastExtReq reasoning.Request
}

func (s *scriptedService) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Result, error) {
	if s.err != nil {
		return nil, s.err
	}

	switch req.ForceTool {
	case "record_agent_decision":
		if len(s.decisions) == 0 {
			s.t.Fatal("unscripted classifier call")
		}
		d := s.decisions[0]
		s.decisions = s.decisions[1:]
		return toolResult(s.t, "record_agent_decision", d), nil
	case "extract_order_details":
		if len(s.extracts) == 0 {
			s.t.Fatal("unscripted extraction call")
		}
		s.lastExtReq = req
		e := s.extracts[0]
		s.extracts = s.extracts[1:]
		return toolResult(s.t, "extract_order_details", e), nil
	default:
		s.t.Fatalf("unexpected forced tool %q", req.ForceTool)
		return nil, nil
	}
}

func toolResult(t *testing.T, name string, v any) *reasoning.Result {
	t.Helper()
	args, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return &reasoning.Result{Calls: []reasoning.ToolCall{{Name: name, Arguments: args}}}
}

type fixture struct {
	engine   *Engine
	svc      *scriptedService
	store    *catalog.MemoryStore
	patients *catalog.MemoryPatientStore
	sessions *session.MemoryStore
	repo     *order.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	svc := &scriptedService{t: t}
	store := catalog.NewMemoryStore(catalog.SeedMedicines())
	patients := catalog.NewMemoryPatientStore(catalog.SeedPatients())
	sessions := session.NewMemoryStore()
	repo := order.NewMemoryRepository()

	engine := New(Deps{
		Reasoning: svc,
		Catalog:   store,
		Patients:  patients,
		Sessions:  sessions,
		Orders:    repo,
		Prices:    catalog.DefaultPriceTable(),
		Predictor: refill.NewPredictor(nil, nil),
		Metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
	})

	return &fixture{engine: engine, svc: svc, store: store, patients: patients, sessions: sessions, repo: repo}
}

func timeDaysAgo(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}

func routeOrder() *AgentDecision {
	return &AgentDecision{Agent: "pharmacist", Decision: DecisionApproved, Reason: "order intent", NextAgent: "order"}
}

func extractParacetamol(qty int) *ExtractionResult {
	return &ExtractionResult{Entities: []ExtractedEntity{{
		Medicine: "Paracetamol", Dosage: "500mg", Quantity: qty, Confidence: 0.95, RawText: "paracetamol",
	}}}
}

func TestOrderThenConfirmFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Turn 1: place the order
	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need 2 paracetamol"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.RequiresConfirmation {
		t.Fatal("expected requires_confirmation")
	}
	if resp.OrderPreview == nil || resp.OrderPreview.TotalAmount != 0.30 {
		t.Fatalf("preview = %+v, want total 0.30", resp.OrderPreview)
	}
	if !strings.Contains(resp.Message, "confirm") {
		t.Errorf("preview message missing confirm ask: %q", resp.Message)
	}

	// Turn 2: confirm it
	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionApproved, Reason: "confirmation", NextAgent: "confirm",
	}}

	resp, err = f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "confirm"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Order == nil {
		t.Fatalf("no committed order in response: %+v", resp)
	}
	if resp.Order.Status != order.StatusProcessing {
		t.Errorf("order status = %s, want PROCESSING", resp.Order.Status)
	}
	// 0.30 subtotal + 5% tax + 2.00 delivery
	if !strings.Contains(resp.Message, "Total: $2.32") {
		t.Errorf("confirmation message missing grand total: %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "Receipt #: RCP-") {
		t.Errorf("confirmation message missing receipt: %q", resp.Message)
	}

	// Stock was decremented
	med, err := f.store.GetByID(ctx, "MED001")
	if err != nil {
		t.Fatal(err)
	}
	if med.StockLevel != 498 {
		t.Errorf("stock = %d, want 498", med.StockLevel)
	}

	// The preview converted exactly once
	if _, err := f.sessions.TakePreview(ctx, "PAT001"); !errors.Is(err, session.ErrNoPendingOrder) {
		t.Errorf("pending preview survived confirmation: %v", err)
	}

	// History was recorded for refill prediction
	history, err := f.patients.GetOrderHistory(ctx, "PAT001")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].SupplyDays != 30 {
		t.Errorf("history = %+v", history)
	}
}

func TestConfirmWithoutPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionApproved, Reason: "confirmation", NextAgent: "confirm",
	}}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "confirm"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I don't see any pending order to confirm") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestCancelFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need 2 paracetamol"}); err != nil {
		t.Fatal(err)
	}

	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionApproved, Reason: "cancellation", NextAgent: "cancel",
	}}
	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "cancel"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "Your order has been cancelled") {
		t.Errorf("message = %q", resp.Message)
	}

	// Cancelling again is not an error
	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionApproved, Reason: "cancellation", NextAgent: "cancel",
	}}
	resp, err = f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "cancel"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "You don't have any pending order to cancel") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestNewOrderSupersedesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need 2 paracetamol"}); err != nil {
		t.Fatal(err)
	}

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{{Entities: []ExtractedEntity{{
		Medicine: "Ibuprofen", Dosage: "400mg", Quantity: 10, Confidence: 0.95,
	}}}}
	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "actually make it ibuprofen"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I've replaced your previous pending order.") {
		t.Errorf("message = %q", resp.Message)
	}

	pending, err := f.sessions.PendingPreview(ctx, "PAT001")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Items) != 1 || pending.Items[0].MedicineName != "Ibuprofen" {
		t.Errorf("pending items = %+v", pending.Items)
	}
}

func TestInventoryChainDefaultsQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The classifier hands into the inventory chain without naming a
	// quantity; the preview must carry the policy default, never zero.
	f.svc.decisions = []*AgentDecision{{
		Agent:     "pharmacist",
		Decision:  DecisionApproved,
		Reason:    "order intent",
		Evidence:  []string{"Medicine: Paracetamol"},
		NextAgent: "inventory",
	}}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need paracetamol"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.RequiresConfirmation {
		t.Fatal("expected requires_confirmation")
	}
	if resp.OrderPreview == nil || len(resp.OrderPreview.Items) != 1 {
		t.Fatalf("preview = %+v", resp.OrderPreview)
	}
	item := resp.OrderPreview.Items[0]
	if item.Quantity != DefaultQuantity {
		t.Errorf("item quantity = %d, want %d", item.Quantity, DefaultQuantity)
	}
	want := order.Round2(0.15 * float64(DefaultQuantity))
	if resp.OrderPreview.TotalAmount != want {
		t.Errorf("preview total = %.2f, want %.2f", resp.OrderPreview.TotalAmount, want)
	}
	if strings.Contains(resp.Message, "We have 0 ") {
		t.Errorf("message quotes zero quantity: %q", resp.Message)
	}
}

func TestPronounResolvedThroughHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{{
		NeedsClarification:   true,
		ClarificationMessage: "How many Paracetamol tablets would you like?",
	}}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "do you have paracetamol?"}); err != nil {
		t.Fatal(err)
	}

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "2 tablets of it"}); err != nil {
		t.Fatal(err)
	}

	// The extraction call must see the earlier turns so "it" can resolve.
	var sawHistory bool
	for _, msg := range f.svc.lastExtReq.Messages {
		if msg.Content == "do you have paracetamol?" {
			sawHistory = true
		}
	}
	if !sawHistory {
		t.Error("extraction request did not include the prior turn")
	}
}

func TestRejectedOrderLeavesNoPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{{Entities: []ExtractedEntity{{
		Medicine: "Ranitidine", Quantity: 10, Confidence: 0.9,
	}}}}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need ranitidine"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I cannot process this order") {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.RequiresConfirmation {
		t.Error("rejected order asked for confirmation")
	}
	if _, err := f.sessions.PendingPreview(ctx, "PAT001"); !errors.Is(err, session.ErrNoPendingOrder) {
		t.Errorf("rejected order left a pending preview: %v", err)
	}
}

func TestUnknownMedicineReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{{Entities: []ExtractedEntity{{
		Medicine: "Unobtanium", Quantity: 5, Confidence: 0.8,
	}}}}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need unobtanium"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I couldn't find 'Unobtanium' in our inventory") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestClassifierNeedsInfoRepliesDirectly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{{
		Agent:    "pharmacist",
		Decision: DecisionNeedsInfo,
		Reason:   "greeting",
		Message:  "Hello Asha! How can I help you today?",
	}}

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Hello Asha! How can I help you today?" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestClassifierFailureDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.err = errors.New("model overloaded")

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I encountered an error processing your request") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestUnknownPatient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT999", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I couldn't find your patient record") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestSessionsIsolatedBySessionID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", SessionID: "sess-a", Message: "I need 2 paracetamol"}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.sessions.PendingPreview(ctx, "sess-a"); err != nil {
		t.Errorf("session a pending missing: %v", err)
	}
	if _, err := f.sessions.PendingPreview(ctx, "sess-b"); !errors.Is(err, session.ErrNoPendingOrder) {
		t.Errorf("session b unexpectedly has state: %v", err)
	}
}

func TestFailedConfirmationRestoresPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{routeOrder()}
	f.svc.extracts = []*ExtractionResult{extractParacetamol(2)}
	if _, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "I need 2 paracetamol"}); err != nil {
		t.Fatal(err)
	}

	// Deplete the shelf behind the preview's back
	if err := f.store.UpdateStock(ctx, "MED001", -499); err != nil {
		t.Fatal(err)
	}

	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionApproved, Reason: "confirmation", NextAgent: "confirm",
	}}
	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "confirm"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "I encountered an error processing your request") {
		t.Errorf("message = %q", resp.Message)
	}

	// The preview is back, so the user can retry once stock returns
	if _, err := f.sessions.PendingPreview(ctx, "PAT001"); err != nil {
		t.Errorf("preview not restored after failed confirmation: %v", err)
	}

	// Nothing was committed
	ids, err := f.repo.ListIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("committed orders = %v, want none", ids)
	}
}

func TestRefillStatusReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A nearly exhausted supply on file
	rec := catalog.OrderRecord{
		OrderID:      "ORD-old",
		PatientID:    "PAT001",
		MedicineID:   "MED002",
		MedicineName: "Metformin",
		Quantity:     30,
		PurchaseDate: timeDaysAgo(28),
		SupplyDays:   30,
		Status:       "COMPLETED",
	}
	if err := f.patients.AddOrderRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionScheduled, Reason: "refill question", NextAgent: "refill",
	}}
	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "do I need any refills?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "Metformin: 2 days remaining (refill soon)") {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.RefillSuggestions) != 1 {
		t.Errorf("suggestions = %+v", resp.RefillSuggestions)
	}
}

func TestRefillNothingDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.svc.decisions = []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionScheduled, Reason: "refill question", NextAgent: "refill",
	}}
	resp, err := f.engine.HandleMessage(ctx, Request{PatientID: "PAT001", Message: "do I need any refills?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "you don't have any refills due") {
		t.Errorf("message = %q", resp.Message)
	}
}

// blockRefillService answers every analyze_refills call with a BLOCK
// prediction for Amoxicillin.
type blockRefillService struct{}

func (blockRefillService) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Result, error) {
	args, err := json.Marshal(map[string]any{
		"predictions": []refill.Prediction{{
			Medicine:      "Amoxicillin",
			DaysRemaining: 0,
			Action:        refill.ActionBlock,
			Confidence:    0.95,
			Reason:        "Prescription exhausted, pharmacist review required",
		}},
	})
	if err != nil {
		return nil, err
	}
	return &reasoning.Result{Calls: []reasoning.ToolCall{{Name: "analyze_refills", Arguments: args}}}, nil
}

func TestAdvisoryIncludesBlockedRefills(t *testing.T) {
	ctx := context.Background()
	patients := catalog.NewMemoryPatientStore(catalog.SeedPatients())
	rec := catalog.OrderRecord{
		OrderID:      "ORD-old",
		PatientID:    "PAT001",
		MedicineID:   "MED007",
		MedicineName: "Amoxicillin",
		Quantity:     30,
		PurchaseDate: timeDaysAgo(35),
		SupplyDays:   30,
		Status:       "COMPLETED",
	}
	if err := patients.AddOrderRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	c := NewConfirmer(
		session.NewMemoryStore(),
		order.NewMemoryRepository(),
		catalog.NewMemoryStore(catalog.SeedMedicines()),
		patients,
		refill.NewPredictor(blockRefillService{}, nil),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		nil,
	)

	preview := &order.Preview{
		PreviewID:   order.NewPreviewID(),
		PatientID:   "PAT001",
		PatientName: "Asha Verma",
		Items:       []order.Item{{MedicineID: "MED001", MedicineName: "Paracetamol", Quantity: 2}},
	}
	advisory := c.advisory(ctx, preview)
	if !strings.Contains(advisory, "Amoxicillin") {
		t.Errorf("advisory = %q, want Amoxicillin mention", advisory)
	}
	if !strings.Contains(advisory, "running low") {
		t.Errorf("advisory = %q", advisory)
	}
}

func TestEngineDefaultsMetrics(t *testing.T) {
	svc := &scriptedService{t: t, decisions: []*AgentDecision{{
		Agent: "pharmacist", Decision: DecisionNeedsInfo, Message: "Which medicine do you need?",
	}}}
	engine := New(Deps{
		Reasoning: svc,
		Catalog:   catalog.NewMemoryStore(catalog.SeedMedicines()),
		Patients:  catalog.NewMemoryPatientStore(catalog.SeedPatients()),
		Sessions:  session.NewMemoryStore(),
		Orders:    order.NewMemoryRepository(),
		Prices:    catalog.DefaultPriceTable(),
		Predictor: refill.NewPredictor(nil, nil),
	})

	resp, err := engine.HandleMessage(context.Background(), Request{PatientID: "PAT001", Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Which medicine do you need?" {
		t.Errorf("message = %q", resp.Message)
	}
}

package order

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Status represents order status. The progression is monotonic forward;
// only cancellation leaves the forward path.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusValidated  Status = "VALIDATED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusPreparing  Status = "PREPARING"
	StatusShipped    Status = "SHIPPED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// InvalidTransitionError reports a transition the state machine forbids.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// Item is one order line. Items are copied from the confirming preview and
// immutable afterwards.
type Item struct {
	MedicineID           string  `json:"medicine_id"`
	MedicineName         string  `json:"medicine_name"`
	Strength             string  `json:"strength"`
	Quantity             int     `json:"quantity"`
	UnitPrice            float64 `json:"unit_price"`
	PrescriptionRequired bool    `json:"prescription_required"`
}

// Round2 rounds a monetary amount to two decimals, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Aggregate represents the order aggregate root
type Aggregate struct {
	id             string
	version        int
	status         Status
	patientID      string
	patientName    string
	patientEmail   string
	patientPhone   string
	items          []Item
	totalAmount    float64
	prescriptionID string
	createdAt      time.Time
	updatedAt      time.Time
	changes        []*Event
	log            []*Event
}

// NewAggregate creates an empty order aggregate
func NewAggregate(id string) *Aggregate {
	return &Aggregate{
		id:        id,
		createdAt: time.Now().UTC(),
		updatedAt: time.Now().UTC(),
		changes:   make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status
func (a *Aggregate) Status() Status { return a.status }

// PatientID returns the owning patient's id
func (a *Aggregate) PatientID() string { return a.patientID }

// PatientName returns the owning patient's name
func (a *Aggregate) PatientName() string { return a.patientName }

// TotalAmount returns the frozen order subtotal
func (a *Aggregate) TotalAmount() float64 { return a.totalAmount }

// PrescriptionID returns the linked prescription id, if any
func (a *Aggregate) PrescriptionID() string { return a.prescriptionID }

// CreatedAt returns the creation timestamp
func (a *Aggregate) CreatedAt() time.Time { return a.createdAt }

// Items returns a copy of the order lines
func (a *Aggregate) Items() []Item {
	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = make([]*Event, 0) }

// Log returns the full append-only event log, oldest first.
func (a *Aggregate) Log() []*Event {
	out := make([]*Event, len(a.log))
	copy(out, a.log)
	return out
}

// Create initializes the order in PENDING
func (a *Aggregate) Create(data *OrderCreatedData) error {
	if a.status != "" {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusPending}
	}

	event, err := NewEvent(a.id, EventOrderCreated, data)
	if err != nil {
		return err
	}
	event.Status = StatusPending
	event.PatientID = data.PatientID
	event.WithNote("Order created")

	a.record(event)
	return nil
}

// RecordValidation moves PENDING -> VALIDATED once the safety decision is recorded
func (a *Aggregate) RecordValidation(decision string, reasons []string, note string) error {
	if a.status != StatusPending {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusValidated}
	}

	event, err := NewEvent(a.id, EventSafetyValidated, &SafetyValidatedData{
		OrderID:  a.id,
		Decision: decision,
		Reasons:  reasons,
	})
	if err != nil {
		return err
	}
	event.Status = StatusValidated
	event.WithNote(note)

	a.record(event)
	return nil
}

// Confirm moves VALIDATED -> CONFIRMED after explicit patient confirmation
func (a *Aggregate) Confirm(note string) error {
	if a.status != StatusValidated {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusConfirmed}
	}

	event, err := NewEvent(a.id, EventOrderConfirmed, map[string]string{"order_id": a.id})
	if err != nil {
		return err
	}
	event.Status = StatusConfirmed
	event.WithNote(note)

	a.record(event)
	return nil
}

// RecordInventoryUpdate appends the stock-adjustment side event. It does not
// change status; it is only valid while the order is CONFIRMED.
func (a *Aggregate) RecordInventoryUpdate(totalQuantity int) error {
	if a.status != StatusConfirmed {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: a.status}
	}

	event, err := NewEvent(a.id, EventInventoryUpdated, &InventoryUpdatedData{
		OrderID:       a.id,
		TotalQuantity: totalQuantity,
	})
	if err != nil {
		return err
	}
	event.Status = a.status
	event.WithNote(fmt.Sprintf("Inventory updated: %d units reserved", totalQuantity))

	a.record(event)
	return nil
}

// StartProcessing moves CONFIRMED -> PROCESSING when fulfillment is initiated
func (a *Aggregate) StartProcessing(note string) error {
	if a.status != StatusConfirmed {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusProcessing}
	}
	return a.transition(EventFulfillmentStarted, StatusProcessing, note)
}

// MarkPreparing moves PROCESSING -> PREPARING
func (a *Aggregate) MarkPreparing(note string) error {
	if a.status != StatusProcessing {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusPreparing}
	}
	return a.transition(EventOrderPreparing, StatusPreparing, note)
}

// MarkShipped moves PREPARING -> SHIPPED
func (a *Aggregate) MarkShipped(note string) error {
	if a.status != StatusPreparing {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusShipped}
	}
	return a.transition(EventOrderShipped, StatusShipped, note)
}

// Complete moves SHIPPED -> COMPLETED
func (a *Aggregate) Complete(note string) error {
	if a.status != StatusShipped {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusCompleted}
	}
	return a.transition(EventOrderCompleted, StatusCompleted, note)
}

// Cancel moves any non-terminal status to CANCELLED. Cancelling a COMPLETED
// or already CANCELLED order is an invalid transition.
func (a *Aggregate) Cancel(note string) error {
	if a.status == StatusCompleted || a.status == StatusCancelled || a.status == "" {
		return &InvalidTransitionError{OrderID: a.id, From: a.status, To: StatusCancelled}
	}
	return a.transition(EventOrderCancelled, StatusCancelled, note)
}

func (a *Aggregate) transition(eventType EventType, to Status, note string) error {
	event, err := NewEvent(a.id, eventType, map[string]string{"order_id": a.id})
	if err != nil {
		return err
	}
	event.Status = to
	event.WithNote(note)

	a.record(event)
	return nil
}

func (a *Aggregate) record(event *Event) {
	a.apply(event)
	event.Version = a.version
	a.changes = append(a.changes, event)
}

// apply applies an event to update state
func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp
	a.log = append(a.log, event)

	switch event.EventType {
	case EventOrderCreated:
		a.applyCreated(event)
	case EventInventoryUpdated:
		// side event, status unchanged
	default:
		if event.Status != "" {
			a.status = event.Status
		}
	}
}

func (a *Aggregate) applyCreated(event *Event) {
	var data OrderCreatedData
	if err := json.Unmarshal(event.EventData, &data); err != nil {
		return
	}
	a.status = StatusPending
	a.patientID = data.PatientID
	a.patientName = data.PatientName
	a.patientEmail = data.PatientEmail
	a.patientPhone = data.PatientPhone
	a.items = data.Items
	a.totalAmount = data.TotalAmount
	if !data.CreatedAt.IsZero() {
		a.createdAt = data.CreatedAt
	}
}

// LoadFromHistory rebuilds state from events
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}

// Package order implements the order aggregate and its domain events.
package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventOrderCreated       EventType = "OrderCreated"
	EventSafetyValidated    EventType = "SafetyValidated"
	EventOrderConfirmed     EventType = "OrderConfirmed"
	EventInventoryUpdated   EventType = "InventoryUpdated"
	EventFulfillmentStarted EventType = "FulfillmentStarted"
	EventOrderPreparing     EventType = "OrderPreparing"
	EventOrderShipped       EventType = "OrderShipped"
	EventOrderCompleted     EventType = "OrderCompleted"
	EventOrderCancelled     EventType = "OrderCancelled"
)

// Event represents a domain event. The event log of an order is append-only;
// entries are never overwritten.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Status        Status          `json:"status"`
	Note          string          `json:"note,omitempty"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientID     string          `json:"patient_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Order",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithNote attaches a human-readable note recorded alongside the transition.
func (e *Event) WithNote(note string) *Event {
	e.Note = note
	return e
}

// OrderCreatedData contains order creation details
type OrderCreatedData struct {
	OrderID      string    `json:"order_id"`
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email,omitempty"`
	PatientPhone string    `json:"patient_phone,omitempty"`
	Items        []Item    `json:"items"`
	TotalAmount  float64   `json:"total_amount"`
	PreviewID    string    `json:"preview_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SafetyValidatedData records the safety decision applied to the order
type SafetyValidatedData struct {
	OrderID  string   `json:"order_id"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

// InventoryUpdatedData records the stock adjustment side effect
type InventoryUpdatedData struct {
	OrderID       string `json:"order_id"`
	TotalQuantity int    `json:"total_quantity"`
}

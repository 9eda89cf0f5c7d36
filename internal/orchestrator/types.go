package orchestrator

import (
	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/internal/safety"
	"github.com/pharmaops/go-rxchat/internal/session"
)

// Request is one inbound chat turn.
type Request struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Session returns the effective session id, falling back to the patient id.
func (r *Request) Session() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.PatientID
}

// Response is the outcome of one chat turn.
type Response struct {
	Message              string               `json:"message"`
	ExtractedEntities    *ExtractionResult    `json:"extracted_entities,omitempty"`
	SafetyResult         *safety.Result       `json:"safety_result,omitempty"`
	OrderPreview         *order.Preview       `json:"order_preview,omitempty"`
	Order                *OrderView           `json:"order,omitempty"`
	RefillSuggestions    []refill.Prediction  `json:"refill_suggestions,omitempty"`
	RequiresConfirmation bool                 `json:"requires_confirmation,omitempty"`
	Decisions            []*AgentDecision     `json:"decisions,omitempty"`
}

// OrderView is the transport shape of a committed order.
type OrderView struct {
	OrderID        string       `json:"order_id"`
	PatientID      string       `json:"patient_id"`
	PatientName    string       `json:"patient_name"`
	Items          []order.Item `json:"items"`
	TotalAmount    float64      `json:"total_amount"`
	Status         order.Status `json:"status"`
	PrescriptionID string       `json:"prescription_id,omitempty"`
	CreatedAt      string       `json:"created_at"`
}

// Turn carries the working state of one chat turn through the hand-off chain.
type Turn struct {
	Request Request
	Patient catalog.Patient
	History []session.Turn
	// RecentOrders is a short summary of the patient's order history, given
	// to collaborators as context.
	RecentOrders string
	Payload      Payload
	Decisions    []*AgentDecision
	// Response is set by a terminal collaborator and ends the chain.
	Response *Response
}

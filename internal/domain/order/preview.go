package order

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaops/go-rxchat/internal/safety"
)

// Preview is an unconfirmed, proposed order awaiting user confirmation. It
// lives only in the session store until confirmed or cancelled; at most one
// preview is active per session at any time.
type Preview struct {
	PreviewID            string          `json:"preview_id"`
	PatientID            string          `json:"patient_id"`
	PatientName          string          `json:"patient_name"`
	Items                []Item          `json:"items"`
	TotalAmount          float64         `json:"total_amount"`
	SafetyDecision       safety.Decision `json:"safety_decision"`
	SafetyReasons        []string        `json:"safety_reasons,omitempty"`
	RequiresPrescription bool            `json:"requires_prescription"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Subtotal recomputes the rounded sum of unit price times quantity.
func (p *Preview) Subtotal() float64 {
	var sum float64
	for _, it := range p.Items {
		sum += it.UnitPrice * float64(it.Quantity)
	}
	return Round2(sum)
}

func shortID(prefix string) string {
	return prefix + strings.ToUpper(uuid.New().String()[:8])
}

// NewPreviewID mints a fresh unique preview id.
func NewPreviewID() string { return shortID("PRV-") }

// NewOrderID mints a fresh unique order id.
func NewOrderID() string { return shortID("ORD-") }

// NewReceiptNumber mints a fresh receipt number.
func NewReceiptNumber() string { return shortID("RCP-") }

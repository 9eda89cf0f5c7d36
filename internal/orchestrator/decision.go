// Package orchestrator is the conversational core: it classifies each inbound
// message, drives the hand-off chain across decision-producing collaborators,
// assembles order previews, and promotes previews to committed orders.
package orchestrator

import (
	"strconv"
	"strings"
)

// Decision outcomes carried by the AgentDecision envelope.
const (
	DecisionApproved  = "APPROVED"
	DecisionRejected  = "REJECTED"
	DecisionNeedsInfo = "NEEDS_INFO"
	DecisionScheduled = "SCHEDULED"
)

// AgentDecision is the envelope every decision-producing collaborator returns.
// Evidence keeps the ordered human-readable rationale for audit; hops exchange
// data through the typed Payload instead.
type AgentDecision struct {
	Agent     string   `json:"agent"`
	Decision  string   `json:"decision"`
	Reason    string   `json:"reason"`
	Message   string   `json:"message,omitempty"`
	Evidence  []string `json:"evidence"`
	NextAgent string   `json:"next_agent,omitempty"`
}

// Terminal reports whether the decision ends the turn immediately.
func (d *AgentDecision) Terminal() bool {
	return d.Decision == DecisionNeedsInfo || d.Decision == DecisionRejected
}

// Reply returns the user-facing text for a terminal decision.
func (d *AgentDecision) Reply() string {
	if d.Message != "" {
		return d.Message
	}
	return d.Reason
}

// DefaultQuantity is assumed when a hop carries no parsable quantity.
const DefaultQuantity = 30

// Payload is the typed data exchanged between hand-off hops.
type Payload struct {
	Medicine             string
	Strength             string
	Quantity             int
	UnitPrice            float64
	Stock                int
	RequiresPrescription bool
	Confirmed            bool
}

// PayloadFromEvidence parses an evidence list of "key: value" strings into a
// Payload. The parse is tolerant: entries without a colon are skipped, keys
// are lower-cased and trimmed, a trailing "x" is stripped from quantity
// strings, and an unparsable quantity falls back to the default.
func PayloadFromEvidence(evidence []string) Payload {
	p := Payload{Quantity: DefaultQuantity}
	p.apply(evidence)
	return p
}

// Merge folds another hop's evidence into the payload, later hops win.
func (p *Payload) Merge(evidence []string) {
	p.apply(evidence)
}

func (p *Payload) apply(evidence []string) {
	for _, item := range evidence {
		key, val, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "medicine":
			p.Medicine = val
		case "strength", "dosage":
			p.Strength = val
		case "quantity", "qty":
			p.Quantity = parseQuantity(val)
		case "price", "unit price":
			if f, err := strconv.ParseFloat(strings.TrimPrefix(val, "$"), 64); err == nil {
				p.UnitPrice = f
			}
		case "stock":
			if n, err := strconv.Atoi(val); err == nil {
				p.Stock = n
			}
		case "requires prescription":
			p.RequiresPrescription = strings.Contains(strings.ToLower(val), "yes")
		case "confirmed":
			p.Confirmed = strings.EqualFold(val, "true")
		}
	}
}

func parseQuantity(val string) int {
	s := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(val), "x"))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultQuantity
	}
	return n
}

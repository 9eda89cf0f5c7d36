// Package session tracks per-conversation state: recent chat history and the
// single pending order preview awaiting confirmation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/pharmaops/go-rxchat/internal/domain/order"
)

var (
	// ErrNoPendingOrder is returned when a confirmation or cancellation
	// arrives and no preview is awaiting a decision.
	ErrNoPendingOrder = errors.New("no pending order for session")
	// ErrPreviewNotFound is returned when the referenced preview no longer
	// exists, typically because it expired.
	ErrPreviewNotFound = errors.New("order preview not found")
)

// DefaultPreviewTTL bounds how long an unconfirmed preview stays actionable.
const DefaultPreviewTTL = 30 * time.Minute

// DefaultHistoryLimit caps how many recent turns are replayed to collaborators.
const DefaultHistoryLimit = 8

// Turn is one utterance in a conversation, either from the patient or from
// the assistant.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds conversation state. A session has at most one pending preview;
// saving a new one replaces any previous pending preview.
type Store interface {
	// AppendHistory records a turn for the session.
	AppendHistory(ctx context.Context, sessionID string, turn Turn) error
	// History returns the most recent turns, newest last, capped at the
	// store's history limit.
	History(ctx context.Context, sessionID string) ([]Turn, error)

	// SavePreview stores a preview and marks it as the session's pending
	// order. It returns the id of the preview it replaced, if any.
	SavePreview(ctx context.Context, sessionID string, p *order.Preview) (replaced string, err error)
	// PendingPreview returns the session's pending preview without
	// consuming it.
	PendingPreview(ctx context.Context, sessionID string) (*order.Preview, error)
	// TakePreview atomically returns and clears the session's pending
	// preview. Used on confirmation so a preview converts at most once.
	TakePreview(ctx context.Context, sessionID string) (*order.Preview, error)
	// ClearPending drops the pending preview. Clearing an already clear
	// session is not an error; the bool reports whether anything was
	// cleared.
	ClearPending(ctx context.Context, sessionID string) (bool, error)
}

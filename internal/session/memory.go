package session

import (
	"context"
	"sync"
	"time"

	"github.com/pharmaops/go-rxchat/internal/domain/order"
)

type sessionState struct {
	history   []Turn
	preview   *order.Preview
	expiresAt time.Time
}

// MemoryStore is an in-process Store, suitable for single-instance
// deployments and tests.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[string]*sessionState
	previewTTL   time.Duration
	historyLimit int
	now          func() time.Time
}

// NewMemoryStore creates a store with the default preview TTL and history cap.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*sessionState),
		previewTTL:   DefaultPreviewTTL,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
}

func (s *MemoryStore) state(sessionID string) *sessionState {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	return st
}

// expire drops the pending preview if its TTL has elapsed. Callers hold s.mu.
func (s *MemoryStore) expire(st *sessionState) {
	if st.preview != nil && s.now().After(st.expiresAt) {
		st.preview = nil
	}
}

func (s *MemoryStore) AppendHistory(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	st.history = append(st.history, turn)
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	h := st.history
	if len(h) > s.historyLimit {
		h = h[len(h)-s.historyLimit:]
	}
	out := make([]Turn, len(h))
	copy(out, h)
	return out, nil
}

func (s *MemoryStore) SavePreview(_ context.Context, sessionID string, p *order.Preview) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	s.expire(st)

	var replaced string
	if st.preview != nil {
		replaced = st.preview.PreviewID
	}
	st.preview = p
	st.expiresAt = s.now().Add(s.previewTTL)
	return replaced, nil
}

func (s *MemoryStore) PendingPreview(_ context.Context, sessionID string) (*order.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	s.expire(st)
	if st.preview == nil {
		return nil, ErrNoPendingOrder
	}
	return st.preview, nil
}

func (s *MemoryStore) TakePreview(_ context.Context, sessionID string) (*order.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	s.expire(st)
	if st.preview == nil {
		return nil, ErrNoPendingOrder
	}
	p := st.preview
	st.preview = nil
	return p, nil
}

func (s *MemoryStore) ClearPending(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(sessionID)
	s.expire(st)
	cleared := st.preview != nil
	st.preview = nil
	return cleared, nil
}

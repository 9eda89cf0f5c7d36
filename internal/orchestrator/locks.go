package orchestrator

import "sync"

// sessionLocks serializes turns per session id. Two concurrent turns for the
// same session must not interleave their read-decide-write sequences on the
// pending preview; turns for different sessions proceed independently.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// Acquire blocks until the session's lock is held and returns its release
// function. Lock entries are reference counted and removed when idle.
func (s *sessionLocks) Acquire(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

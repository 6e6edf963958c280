package server

import (
	"sync"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

// SessionRegistry is the per-connection map from connectionId to logical
// Session: lazy creation, lifecycle.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[int32]protocol.Session
	factory  protocol.SessionFactory
	info     protocol.ConnectionInfo
}

// NewSessionRegistry creates a registry that lazily constructs sessions
// via factory using info.
func NewSessionRegistry(factory protocol.SessionFactory, info protocol.ConnectionInfo) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[int32]protocol.Session),
		factory:  factory,
		info:     info,
	}
}

// GetOrCreate returns the existing session for connID or atomically
// creates one. On a race between two callers, the loser closes its
// freshly created session and returns the winner's.
func (r *SessionRegistry) GetOrCreate(connID int32) (protocol.Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[connID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	s, err := r.factory(r.info)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[connID]; ok {
		s.Close()
		return existing, nil
	}
	r.sessions[connID] = s
	return s, nil
}

// Get returns the session for connID without creating one.
func (r *SessionRegistry) Get(connID int32) (protocol.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Close tears down the session for connID: best-effort ROLLBACK via the
// session's transaction, then Session.Close. The first error seen is
// retained and returned; resources are released regardless.
func (r *SessionRegistry) Close(connID int32) error {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return closeSession(s)
}

func closeSession(s protocol.Session) error {
	var first error
	if txn := s.GetTransaction(); txn != nil {
		if err := txn.Rollback(); err != nil {
			first = err
		}
	}
	if err := s.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// CloseAll tears down every registered session, e.g. at connection
// teardown. Errors are collected but do not stop the sweep.
func (r *SessionRegistry) CloseAll() []error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[int32]protocol.Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := closeSession(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

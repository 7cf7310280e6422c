/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// legalTransitions enumerates every state a session may move to from its
// current state (§5). Anything not listed here is rejected.
var legalTransitions = map[SessionState][]SessionState{
	SessionInitiating:     {SessionAuthenticating, SessionFailed, SessionClosed},
	SessionAuthenticating: {SessionKeyExchange, SessionFailed, SessionClosed},
	SessionKeyExchange:    {SessionConnected, SessionFailed, SessionClosed},
	SessionConnected:      {SessionTransferring, SessionClosing, SessionFailed, SessionClosed},
	SessionTransferring:   {SessionInterrupted, SessionClosing, SessionConnected, SessionFailed, SessionClosed},
	SessionInterrupted:    {SessionTransferring, SessionClosing, SessionFailed, SessionClosed},
	SessionClosing:        {SessionClosed, SessionFailed},
	SessionClosed:         {},
	SessionFailed:         {},
}

// Session is one transport session's state machine, grounded on the
// teacher's Connection type: a single mutex-guarded struct any number of
// goroutines (ping loop, read loop, transfer driver) can safely touch.
type Session struct {
	mu    sync.Mutex
	id    string
	state SessionState

	sessionKey []byte

	metrics *metrics.TransportMetrics
	now     func() time.Time
}

// NewSession starts a session in the INITIATING state.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:    uuid.New().String(),
		state: SessionInitiating,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithSessionMetrics wires Prometheus metrics into the Session.
func WithSessionMetrics(m *metrics.TransportMetrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSessionClock overrides the Session's notion of "now", for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSessionKey stores the session key negotiated during KEY_EXCHANGE.
func (s *Session) SetSessionKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionKey = key
}

// SessionKey returns the negotiated session key, if any.
func (s *Session) SessionKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionKey
}

// Transition moves the session to next, rejecting any transition not in
// legalTransitions for the current state.
func (s *Session) Transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range legalTransitions[s.state] {
		if allowed == next {
			s.state = next
			if s.metrics != nil {
				s.metrics.RecordSessionState(string(next))
			}
			return nil
		}
	}
	return errs.New(errs.KindUnauthorized, fmt.Sprintf("illegal session transition %s -> %s", s.state, next))
}

// Interrupt moves a TRANSFERRING session to INTERRUPTED, the disposition a
// deadline-exceeded transport operation leaves behind (§5: "exceeding a
// deadline marks the transfer INTERRUPTED with resumable=true"). An
// INTERRUPTED session may return to TRANSFERRING; the resumable flag
// itself lives on Transfer and is set by Transfer.MarkInterrupted.
func (s *Session) Interrupt() error {
	if err := s.Transition(SessionInterrupted); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransferInterrupted()
	}
	return nil
}

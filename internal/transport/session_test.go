/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func TestSessionFollowsFullHappyPathTransitions(t *testing.T) {
	s := NewSession()
	steps := []SessionState{
		SessionAuthenticating, SessionKeyExchange, SessionConnected,
		SessionTransferring, SessionClosing, SessionClosed,
	}
	for _, next := range steps {
		if err := s.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if s.State() != SessionClosed {
		t.Fatalf("expected CLOSED, got %s", s.State())
	}
}

func TestSessionRejectsIllegalTransition(t *testing.T) {
	s := NewSession()
	if err := s.Transition(SessionConnected); errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected UNAUTHORIZED for skipping states, got %v", err)
	}
}

func TestSessionClosedIsTerminal(t *testing.T) {
	s := NewSession()
	for _, next := range []SessionState{SessionAuthenticating, SessionKeyExchange, SessionConnected, SessionClosing, SessionClosed} {
		if err := s.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := s.Transition(SessionConnected); err == nil {
		t.Fatal("expected no transitions out of CLOSED")
	}
}

func TestSessionInterruptMarksResumable(t *testing.T) {
	s := NewSession()
	for _, next := range []SessionState{SessionAuthenticating, SessionKeyExchange, SessionConnected, SessionTransferring} {
		if err := s.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := s.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if s.State() != SessionInterrupted {
		t.Fatalf("expected INTERRUPTED, got %s", s.State())
	}
	if err := s.Transition(SessionTransferring); err != nil {
		t.Fatalf("expected INTERRUPTED session to resume TRANSFERRING: %v", err)
	}
}

func TestSessionWithMetricsRecordsStateChanges(t *testing.T) {
	now := time.Now()
	reg := prometheus.NewRegistry()
	m := metrics.NewTransportMetricsWithRegistry(reg)
	s := NewSession(WithSessionMetrics(m), WithSessionClock(func() time.Time { return now }))

	if err := s.Transition(SessionAuthenticating); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues(string(SessionAuthenticating))); got != 1 {
		t.Fatalf("expected 1 AUTHENTICATING recorded, got %v", got)
	}
}

func TestSessionKeyRoundTrip(t *testing.T) {
	s := NewSession()
	key := []byte("a-session-key")
	s.SetSessionKey(key)
	if string(s.SessionKey()) != string(key) {
		t.Fatal("expected session key to round-trip")
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/veilmesh/nodecore/internal/audit"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// AuditSink receives the CRYPTO_SHRED event a key destruction emits,
// mirroring keyidentity.AuditSink so the Audit Log doesn't need to know
// about transport internals.
type AuditSink interface {
	RecordEvent(ctx context.Context, eventType string, detail map[string]any) error
}

// noopAuditSink discards events; used when a Shredder is built without one.
type noopAuditSink struct{}

func (noopAuditSink) RecordEvent(context.Context, string, map[string]any) error { return nil }

// heldKey is a session key a Shredder owns until its capsule's TTL lapses.
type heldKey struct {
	key       []byte
	expiresAt time.Time
}

// Shredder destroys session keys once their owning capsule's TTL elapses
// and records a CRYPTO_SHRED audit event for each destruction (§4.11: "On
// TTL expiry the session key is destroyed and a CRYPTO_SHRED audit event
// is written").
type Shredder struct {
	mu      sync.Mutex
	held    map[string]heldKey
	audit   AuditSink
	metrics *metrics.TransportMetrics
	now     func() time.Time
}

// NewShredder builds a Shredder. A nil audit sink discards events.
func NewShredder(sink AuditSink, m *metrics.TransportMetrics) *Shredder {
	if sink == nil {
		sink = noopAuditSink{}
	}
	return &Shredder{
		held:    make(map[string]heldKey),
		audit:   sink,
		metrics: m,
		now:     time.Now,
	}
}

// Hold registers key as belonging to capsuleID, to be destroyed no later
// than expiresAt.
func (s *Shredder) Hold(capsuleID string, key []byte, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[capsuleID] = heldKey{key: key, expiresAt: expiresAt}
}

// Sweep destroys every held key whose expiry has passed, zeroing the key
// material in place before dropping the reference and writing a
// CRYPTO_SHRED event per destroyed key.
func (s *Shredder) Sweep(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for id, hk := range s.held {
		if !now.Before(hk.expiresAt) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		zero(s.held[id].key)
		delete(s.held, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		_ = s.audit.RecordEvent(ctx, audit.EventCryptoShred, map[string]any{
			"description": "session key destroyed on capsule TTL expiry",
			"capsule_id":  id,
		})
		if s.metrics != nil {
			s.metrics.RecordCapsuleShredded()
		}
	}
	return len(expired)
}

// Held reports whether capsuleID's key is still live, for tests and
// diagnostics.
func (s *Shredder) Held(capsuleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[capsuleID]
	return ok
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

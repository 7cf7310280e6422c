/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/pkg/claims"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// Inbox is the Request Inbox (§4.6): the gate every Data Request passes
// through before it can reach consent negotiation. It owns two pieces of
// mutable state — a seen-identity set for replay protection, and a
// capacity-bounded pending set queryable by type and by identity.
type Inbox struct {
	mu      sync.Mutex
	pending map[string]*Request

	capacity    int
	seenTTL     time.Duration
	nonces      NonceStore
	verifier    SignatureVerifier
	policyKey   *ecdsa.PublicKey
	metrics     *metrics.InboxMetrics
	now         func() time.Time
	redisClient goredis.UniversalClient
	ownsClient  bool
}

// Option customizes an Inbox at construction.
type Option func(*Inbox)

// WithSignatureVerifier overrides the default structural verifier with a
// stricter one, typically an ECDSASignatureVerifier backed by a real key
// resolver.
func WithSignatureVerifier(v SignatureVerifier) Option {
	return func(ib *Inbox) { ib.verifier = v }
}

// WithMetrics wires Prometheus metrics into the Inbox.
func WithMetrics(m *metrics.InboxMetrics) Option {
	return func(ib *Inbox) { ib.metrics = m }
}

// WithClock overrides the Inbox's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(ib *Inbox) { ib.now = now }
}

// New builds an Inbox from InboxOptions and the policy authority's public
// key used to verify policy stamps. When cfg.RedisAddr is set, replay
// detection is backed by Redis so multiple inbox instances share state;
// otherwise an in-process store is used.
func New(cfg config.InboxOptions, policyKey *ecdsa.PublicKey, opts ...Option) (*Inbox, error) {
	ib := &Inbox{
		pending:   make(map[string]*Request),
		capacity:  cfg.Capacity,
		seenTTL:   cfg.SeenNonceTTL,
		verifier:  DefaultSignatureVerifier{},
		policyKey: policyKey,
		now:       time.Now,
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("inbox: connect redis: %w", err)
		}
		ib.redisClient = client
		ib.ownsClient = true
		ib.nonces = newRedisNonceStore(client, defaultNonceKeyPrefix)
	} else {
		ib.nonces = newInProcessNonceStore()
	}

	for _, o := range opts {
		o(ib)
	}
	return ib, nil
}

// NewWithNonceStore builds an Inbox against an already-constructed
// NonceStore, for tests (e.g. one backed by a miniredis client) or for
// dependency-injected production wiring.
func NewWithNonceStore(cfg config.InboxOptions, policyKey *ecdsa.PublicKey, nonces NonceStore, opts ...Option) *Inbox {
	ib := &Inbox{
		pending:   make(map[string]*Request),
		capacity:  cfg.Capacity,
		seenTTL:   cfg.SeenNonceTTL,
		verifier:  DefaultSignatureVerifier{},
		policyKey: policyKey,
		nonces:    nonces,
		now:       time.Now,
	}
	for _, o := range opts {
		o(ib)
	}
	return ib
}

// Close releases any resources the Inbox owns (a Redis client it dialed
// itself). A no-op when the Inbox was built with NewWithNonceStore or
// without a Redis address.
func (ib *Inbox) Close() error {
	if ib.ownsClient && ib.redisClient != nil {
		return ib.redisClient.Close()
	}
	return nil
}

// Receive runs r through every Inbox rule in turn and reports the outcome.
// On ACCEPTED, r's identity is recorded in the seen-nonce set and r is
// added to the pending set. Cheap, local checks run before any store I/O:
// expiry and signature are checked first, then the policy stamp, then
// replay (which may hit Redis), then capacity.
func (ib *Inbox) Receive(ctx context.Context, r *Request) (Outcome, error) {
	outcome, err := ib.receive(ctx, r)
	if ib.metrics != nil {
		ib.metrics.RecordOutcome(string(outcome))
	}
	return outcome, err
}

func (ib *Inbox) receive(ctx context.Context, r *Request) (Outcome, error) {
	if ib.now().After(r.ExpiresAt) {
		return OutcomeExpired, nil
	}
	if !ib.verifier.Verify(r) {
		return OutcomeInvalidSignature, nil
	}
	if r.PolicyStamp == "" {
		return OutcomeMissingPolicyStamp, nil
	}
	if _, err := claims.VerifyPolicyStamp(r.PolicyStamp, ib.policyKey); err != nil {
		return OutcomeInvalidPolicyStamp, nil
	}

	fresh, err := ib.nonces.TryMark(ctx, r.ID, ib.seenTTL)
	if err != nil {
		return "", fmt.Errorf("inbox: replay check: %w", err)
	}
	if !fresh {
		return OutcomeReplayDetected, nil
	}

	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.evictExpiredLocked()
	if len(ib.pending) >= ib.capacity {
		if ib.metrics != nil {
			ib.metrics.SetQueueDepth(len(ib.pending))
		}
		return OutcomeInboxFull, nil
	}

	ib.pending[r.ID] = r
	if ib.metrics != nil {
		ib.metrics.SetQueueDepth(len(ib.pending))
		if n, err := ib.nonces.Size(ctx); err == nil {
			ib.metrics.SetSeenNonceSetSize(n)
		}
	}
	return OutcomeAccepted, nil
}

// evictExpiredLocked removes every pending request whose ExpiresAt has
// passed, making room before a capacity check rejects an incoming request
// outright (§4.6: "when full, expired pending requests are evicted first").
// Callers must hold ib.mu.
func (ib *Inbox) evictExpiredLocked() {
	now := ib.now()
	for id, req := range ib.pending {
		if now.After(req.ExpiresAt) {
			delete(ib.pending, id)
		}
	}
}

// ByType returns every pending request of the given type, pruning expired
// entries first (§4.6: "pending set is pruned on each retrieval").
func (ib *Inbox) ByType(t RequestType) []*Request {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.evictExpiredLocked()
	var out []*Request
	for _, r := range ib.pending {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// ByIdentity returns the pending request with the given id, if any and not
// expired, pruning expired entries first.
func (ib *Inbox) ByIdentity(id string) (*Request, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.evictExpiredLocked()
	r, ok := ib.pending[id]
	return r, ok
}

// Len returns the current number of pending requests, after pruning
// expired entries.
func (ib *Inbox) Len() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.evictExpiredLocked()
	return len(ib.pending)
}

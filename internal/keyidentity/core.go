// Package keyidentity implements the Key & Identity Core (§4.1): the
// node's root keypair, its deterministic node DID, per-requester pairwise
// identities with rotation, and ECDH+HKDF session-key derivation. A
// pairwise rotation is reported through the AuditSink so the Audit Log
// (§4.2) doesn't need to know anything about key material, only that an
// event happened; session-key derivation reports no event.
package keyidentity

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/keyvault"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// DIDMethod is the DID method name this node uses for all identifiers it mints.
const DIDMethod = "veilmesh"

// AuditSink receives notable key-lifecycle events. Implemented by the
// Audit Log so the Key Core doesn't import it directly.
type AuditSink interface {
	RecordEvent(ctx context.Context, eventType string, detail map[string]any) error
}

// noopAuditSink discards events; used when the core is built without one.
type noopAuditSink struct{}

func (noopAuditSink) RecordEvent(context.Context, string, map[string]any) error { return nil }

// PairwiseIdentity is a per-requester keypair and its rotation bookkeeping.
type PairwiseIdentity struct {
	DID       string
	KeyPair   *cryptoutil.KeyPair
	CreatedAt time.Time
	RequesterID string
}

// SessionKey is a derived symmetric key, memoized by session id.
type SessionKey struct {
	SessionID string
	Key       []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RotationPolicy bounds how long identifiers and keys may live before the
// core considers them due for rotation (§4.1: "default: 30 days per
// requester, 1 day for network identifier, 24h for session keys").
type RotationPolicy struct {
	PairwiseInterval       time.Duration
	NodeIdentifierInterval time.Duration
	SessionKeyTTL          time.Duration
}

// DefaultRotationPolicy returns the policy defaults named in §4.1.
func DefaultRotationPolicy() RotationPolicy {
	return RotationPolicy{
		PairwiseInterval:       30 * 24 * time.Hour,
		NodeIdentifierInterval: 24 * time.Hour,
		SessionKeyTTL:          24 * time.Hour,
	}
}

// Core is the Key & Identity Core. One Core per node process; it owns the
// root keypair and must not be copied after first use (it embeds a mutex).
type Core struct {
	storage keyvault.Storage
	audit   AuditSink
	policy  RotationPolicy

	mu       sync.Mutex
	root     *cryptoutil.KeyPair
	nodeDID  string
	pairwise map[string]*PairwiseIdentity
	sessions map[string]*SessionKey
}

// rootKeyStorageID is the Storage key under which the root private key is kept.
const rootKeyStorageID = "node-root-keypair"

// New builds a Core backed by storage for root-key custody, reporting
// lifecycle events to audit. Pass a nil audit to discard events (used by
// standalone tooling and tests that don't care about the audit trail).
func New(storage keyvault.Storage, audit AuditSink, policy RotationPolicy) *Core {
	if audit == nil {
		audit = noopAuditSink{}
	}
	return &Core{
		storage:  storage,
		audit:    audit,
		policy:   policy,
		pairwise: make(map[string]*PairwiseIdentity),
		sessions: make(map[string]*SessionKey),
	}
}

// RootKeyPair returns the node's persistent root keypair, creating it
// lazily on first call and persisting the private key through Storage.
func (c *Core) RootKeyPair(ctx context.Context) (*cryptoutil.KeyPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rootKeyPairLocked(ctx)
}

func (c *Core) rootKeyPairLocked(ctx context.Context) (*cryptoutil.KeyPair, error) {
	if c.root != nil {
		return c.root, nil
	}

	if raw, err := c.storage.Get(ctx, rootKeyStorageID); err == nil {
		priv, perr := cryptoutil.ParsePrivateKey(raw)
		if perr != nil {
			return nil, errs.Wrap(errs.KindFatalConfig, "root key in storage is corrupt", perr)
		}
		c.root = &cryptoutil.KeyPair{Private: priv, Public: &priv.PublicKey}
		return c.root, nil
	}

	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "failed to generate root keypair", err)
	}
	marshaled, err := cryptoutil.MarshalPrivateKey(kp.Private)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "failed to marshal root private key", err)
	}
	if err := c.storage.Put(ctx, rootKeyStorageID, marshaled); err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "failed to persist root keypair", err)
	}
	c.root = kp
	return kp, nil
}

// NodeDID returns the node's deterministic DID, derived from the root
// public key: did:<method>:node:<first-16-hex-of-SHA-256(pubkey)>.
func (c *Core) NodeDID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodeDID != "" {
		return c.nodeDID, nil
	}
	kp, err := c.rootKeyPairLocked(ctx)
	if err != nil {
		return "", err
	}
	fp, err := cryptoutil.Fingerprint(kp.Public, 16)
	if err != nil {
		return "", errs.Wrap(errs.KindFatalConfig, "failed to fingerprint root public key", err)
	}
	c.nodeDID = fmt.Sprintf("did:%s:node:%s", DIDMethod, fp)
	return c.nodeDID, nil
}

// HardwareBacked reports whether the root key is held in a hardware-backed
// secure-storage provider.
func (c *Core) HardwareBacked() bool {
	return c.storage.HardwareBacked()
}

// PairwiseDID returns (creating if necessary) the pairwise identity for
// requester R: a distinct ephemeral keypair never derivable from the node
// DID, memoized by requester id.
func (c *Core) PairwiseDID(ctx context.Context, requesterID string) (*PairwiseIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.pairwise[requesterID]; ok {
		return id, nil
	}
	return c.mintPairwiseLocked(ctx, requesterID)
}

func (c *Core) mintPairwiseLocked(ctx context.Context, requesterID string) (*PairwiseIdentity, error) {
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "failed to generate pairwise keypair", err)
	}
	fp, err := cryptoutil.Fingerprint(kp.Public, 16)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "failed to fingerprint pairwise public key", err)
	}
	id := &PairwiseIdentity{
		DID:         fmt.Sprintf("did:%s:pairwise:%s", DIDMethod, fp),
		KeyPair:     kp,
		CreatedAt:   time.Now(),
		RequesterID: requesterID,
	}
	c.pairwise[requesterID] = id
	return id, nil
}

// RotatePairwiseDID archives the current pairwise identity for requester R
// and installs a fresh one, emitting an audit event. The returned pair is
// (previous DID, new DID); previous is empty if none existed yet.
func (c *Core) RotatePairwiseDID(ctx context.Context, requesterID string) (previousDID, newDID string, err error) {
	c.mu.Lock()
	old := c.pairwise[requesterID]
	fresh, err := c.mintPairwiseLocked(ctx, requesterID)
	c.mu.Unlock()
	if err != nil {
		return "", "", err
	}
	if old != nil {
		previousDID = old.DID
	}
	newDID = fresh.DID

	_ = c.audit.RecordEvent(ctx, "PAIRWISE_DID_ROTATED", map[string]any{
		"requester_id": requesterID,
		"previous_did": previousDID,
		"new_did":      newDID,
	})
	return previousDID, newDID, nil
}

// PairwiseDueForRotation reports whether requester R's pairwise identity
// has exceeded the configured rotation interval.
func (c *Core) PairwiseDueForRotation(requesterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.pairwise[requesterID]
	if !ok {
		return false
	}
	return time.Since(id.CreatedAt) >= c.policy.PairwiseInterval
}

// DeriveSessionKey derives (or returns the memoized) session key for
// sessionID using ECDH between the node's root keypair and peer's public
// key, HKDF-expanded with sessionID as context. Expires per policy.
func (c *Core) DeriveSessionKey(ctx context.Context, sessionID string, peer *ecdsa.PublicKey) (*SessionKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sk, ok := c.sessions[sessionID]; ok && time.Now().Before(sk.ExpiresAt) {
		return sk, nil
	}

	root, err := c.rootKeyPairLocked(ctx)
	if err != nil {
		return nil, err
	}
	key, err := cryptoutil.DeriveSessionKey(root.Private, peer, sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "session key derivation failed", err)
	}
	now := time.Now()
	sk := &SessionKey{
		SessionID: sessionID,
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(c.policy.SessionKeyTTL),
	}
	c.sessions[sessionID] = sk
	return sk, nil
}

// Sign signs data with the root private key.
func (c *Core) Sign(ctx context.Context, data []byte) ([]byte, error) {
	kp, err := c.RootKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoutil.Sign(kp.Private, data)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalConfig, "signing failed", err)
	}
	return sig, nil
}

// Verify verifies a signature against an arbitrary public key. It never
// panics or returns an error for a mismatched signature — only false.
func (c *Core) Verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	return cryptoutil.Verify(pub, data, sig)
}

// PruneExpiredSessions removes session keys past their expiry. Intended to
// be called periodically (e.g. from a cron.v3 schedule) so the session map
// doesn't grow unbounded.
func (c *Core) PruneExpiredSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, sk := range c.sessions {
		if now.After(sk.ExpiresAt) {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

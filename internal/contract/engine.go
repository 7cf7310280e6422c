/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package contract

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/inbox"
	"github.com/veilmesh/nodecore/internal/sensitivity"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// UserChoices is the requester-facing input to Build: which of the
// request's required/optional labels the user actually agreed to release,
// plus the terms they're offered in exchange.
type UserChoices struct {
	SelectedLabels []string
	IdentityReveal bool
	EscrowRef      string
	Obligation     ObligationTerms
	TTL            time.Duration
	Metadata       map[string]string
}

// Engine builds and signs Consent Contracts.
type Engine struct {
	nodeID  string
	nodeKey *ecdsa.PrivateKey
	cfg     config.ContractOptions
	now     func() time.Time
	metrics *metrics.ContractMetrics
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMetrics wires a ContractMetrics instance into the engine.
func WithMetrics(m *metrics.ContractMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine's notion of the current time, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an Engine that signs contracts as nodeID using nodeKey.
func New(nodeID string, nodeKey *ecdsa.PrivateKey, cfg config.ContractOptions, opts ...Option) *Engine {
	e := &Engine{nodeID: nodeID, nodeKey: nodeKey, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build produces a draft from an accepted request and the user's choices
// (§4.8). It enforces the subset invariant (required ⊆ selected ⊆
// required ∪ optional), a strictly-future TTL, and mints a globally
// unique nonce.
func (e *Engine) Build(req *inbox.Request, choices UserChoices) (*Draft, error) {
	if err := validateSelection(req.RequiredLabels, req.OptionalLabels, choices.SelectedLabels); err != nil {
		return nil, err
	}

	ttl := choices.TTL
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("contract: TTL must be strictly positive")
	}

	d := &Draft{
		ID:             uuid.New().String(),
		RequestID:      req.ID,
		RequesterID:    req.RequesterID,
		NodeID:         e.nodeID,
		SelectedLabels: append([]string(nil), choices.SelectedLabels...),
		Window:         req.Window,
		OutputMode:     req.OutputMode,
		IdentityReveal: choices.IdentityReveal,
		Compensation:   req.Compensation,
		EscrowRef:      choices.EscrowRef,
		TTL:            ttl,
		Obligation:     choices.Obligation,
		Nonce:          uuid.New().String(),
		CreatedAt:      e.now(),
		Metadata:       cloneMetadata(choices.Metadata),
	}

	if e.metrics != nil {
		e.metrics.RecordDraftBuilt()
	}
	return d, nil
}

func validateSelection(required, optional, selected []string) error {
	allowed := make(map[string]bool, len(required)+len(optional))
	for _, l := range required {
		allowed[l] = true
	}
	for _, l := range optional {
		allowed[l] = true
	}
	have := make(map[string]bool, len(selected))
	for _, l := range selected {
		have[l] = true
		if !allowed[l] {
			return fmt.Errorf("contract: selected label %q is not in required ∪ optional", l)
		}
	}
	for _, l := range required {
		if !have[l] {
			return fmt.Errorf("contract: required label %q missing from selection", l)
		}
	}
	return nil
}

// ApplyForcedDefaults returns a copy of d with the sensitivity assessment's
// forced protections applied (§4.7): the output mode lowered to CLEAN_ROOM
// when CLEAN_ROOM_ONLY is required, precise-geo labels stripped when
// COARSE_GEO is required, and a metadata marker recording the forced
// change and the risk level. The original draft is left untouched.
func ApplyForcedDefaults(d *Draft, a sensitivity.Assessment) *Draft {
	out := *d
	out.SelectedLabels = append([]string(nil), d.SelectedLabels...)
	out.Metadata = cloneMetadata(d.Metadata)

	forced := false

	if a.Protections.Has(sensitivity.ProtectionCleanRoomOnly) && out.OutputMode != inbox.OutputModeCleanRoom {
		out.OutputMode = inbox.OutputModeCleanRoom
		forced = true
	}

	if a.Protections.Has(sensitivity.ProtectionCoarseGeo) {
		kept := out.SelectedLabels[:0:0]
		for _, l := range out.SelectedLabels {
			if sensitivity.IsPreciseGeoLabel(l) {
				forced = true
				continue
			}
			kept = append(kept, l)
		}
		out.SelectedLabels = kept
	}

	if forced {
		out.Metadata["sensitivity_forced"] = "true"
		out.Metadata["sensitivity_risk_level"] = string(a.RiskLevel)
	}

	return &out
}

// Sign produces a DS_SIGNED contract over d's canonical bytes. It rejects
// a draft whose TTL has already elapsed.
func (e *Engine) Sign(d *Draft) (*SignedContract, error) {
	if e.now().After(d.ExpiresAt()) {
		return nil, errs.New(errs.KindExpired, "contract: draft has already expired")
	}

	bytes := CanonicalBytes(d)
	sig, err := cryptoutil.Sign(e.nodeKey, bytes)
	if err != nil {
		return nil, fmt.Errorf("contract: sign draft: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordSignature(string(StatusDSSigned))
	}
	return &SignedContract{
		Draft:         *d,
		ContractHash:  ContractHash(d),
		NodeSignature: sig,
		NodeSignedAt:  e.now(),
		Status:        StatusDSSigned,
	}, nil
}

// Reject marks d as rejected without ever signing it, a terminal state
// for a draft that failed negotiation.
func (e *Engine) Reject(d *Draft) *SignedContract {
	if e.metrics != nil {
		e.metrics.RecordSignature(string(StatusRejected))
	}
	return &SignedContract{Draft: *d, ContractHash: ContractHash(d), Status: StatusRejected}
}

// AddCountersignature attaches the requester's signature to a DS_SIGNED
// contract, transitioning it to FULLY_SIGNED. It rejects a contract not
// currently DS_SIGNED and rejects a repeat countersignature.
func AddCountersignature(sc *SignedContract, requesterSig []byte, signedAt time.Time) error {
	if sc.Status != StatusDSSigned {
		return fmt.Errorf("contract: countersignature requires DS_SIGNED, got %s", sc.Status)
	}
	if len(sc.RequesterSignature) > 0 {
		return fmt.Errorf("contract: contract already countersigned")
	}
	sc.RequesterSignature = requesterSig
	sc.RequesterSignedAt = signedAt
	sc.Status = StatusFullySigned
	return nil
}

// Verify checks (a) the draft has not been tampered with since signing,
// (b) the node signature is valid under nodePub, (c) the requester
// signature (if present) is valid under requesterPub, and (d) the
// contract has not expired (§4.8).
func Verify(sc *SignedContract, nodePub, requesterPub *ecdsa.PublicKey, now time.Time) error {
	bytes := CanonicalBytes(&sc.Draft)

	if ContractHash(&sc.Draft) != sc.ContractHash {
		return errs.New(errs.KindContractTampered, "contract: draft does not match its recorded hash")
	}
	if !cryptoutil.Verify(nodePub, bytes, sc.NodeSignature) {
		return errs.New(errs.KindInvalidSignature, "contract: node signature does not verify")
	}
	if len(sc.RequesterSignature) > 0 {
		if requesterPub == nil || !cryptoutil.Verify(requesterPub, bytes, sc.RequesterSignature) {
			return errs.New(errs.KindInvalidSignature, "contract: requester countersignature does not verify")
		}
	}
	if now.After(sc.Draft.ExpiresAt()) {
		return errs.New(errs.KindExpired, "contract: contract has expired")
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

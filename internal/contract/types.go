/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package contract implements the Consent Contract Engine: it turns an
// accepted request and the user's choices into a draft, signs it, accepts
// an optional requester countersignature, and verifies the result against
// tampering and expiry.
package contract

import (
	"time"

	"github.com/veilmesh/nodecore/internal/inbox"
)

// ObligationTerms are the retention and usage commitments a contract
// binds the requester to once data leaves the node.
type ObligationTerms struct {
	RetentionDays     int
	RetentionPolicy   string
	UsageRestrictions []string
	DeletionRequired  bool
}

// Draft is a Consent Contract before it carries any signature, per the
// Consent Contract type (§3): identity, request id, requester id, node
// id, selected labels, time window, output mode, identity-reveal flag,
// compensation terms, escrow reference, TTL, obligation terms, nonce,
// creation timestamp, free-form metadata.
type Draft struct {
	ID             string
	RequestID      string
	RequesterID    string
	NodeID         string
	SelectedLabels []string
	Window         inbox.TimeWindow
	OutputMode     inbox.OutputMode
	IdentityReveal bool
	Compensation   inbox.Compensation
	EscrowRef      string
	TTL            time.Duration
	Obligation     ObligationTerms
	Nonce          string
	CreatedAt      time.Time
	Metadata       map[string]string
}

// ExpiresAt is the instant the draft's TTL elapses, measured from its own
// creation timestamp.
func (d *Draft) ExpiresAt() time.Time {
	return d.CreatedAt.Add(d.TTL)
}

// SignatureStatus is the Signed Contract's state machine position (§4.8).
type SignatureStatus string

const (
	StatusDraft       SignatureStatus = "DRAFT"
	StatusDSSigned    SignatureStatus = "DS_SIGNED"
	StatusFullySigned SignatureStatus = "FULLY_SIGNED"
	StatusRejected    SignatureStatus = "REJECTED"
)

// SignedContract wraps a Draft with its node signature, optional
// requester countersignature, signing timestamps, and signature status.
type SignedContract struct {
	Draft Draft

	// ContractHash is SHA-256 over the draft's canonical bytes, computed
	// at signing time and used as the stable contract hash (§4.8).
	ContractHash string

	NodeSignature []byte
	NodeSignedAt  time.Time

	RequesterSignature []byte
	RequesterSignedAt  time.Time

	Status SignatureStatus
}

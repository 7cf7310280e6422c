/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport implements Transport & Capsule (§4.11): Time Capsule
// construction and verification, resumable chunked delivery under a
// session state machine, and crypto-shred of expired capsule keys.
package transport

import "time"

// SessionState is a transport session's position in its lifecycle.
type SessionState string

const (
	SessionInitiating     SessionState = "INITIATING"
	SessionAuthenticating SessionState = "AUTHENTICATING"
	SessionKeyExchange    SessionState = "KEY_EXCHANGE"
	SessionConnected      SessionState = "CONNECTED"
	SessionTransferring   SessionState = "TRANSFERRING"
	SessionClosing        SessionState = "CLOSING"
	SessionClosed         SessionState = "CLOSED"
	SessionFailed         SessionState = "FAILED"
	SessionInterrupted    SessionState = "INTERRUPTED"
)

// CapsuleHeader is the Time Capsule's signed metadata (§4.11).
type CapsuleHeader struct {
	ID            string
	PlanID        string
	ContractID    string
	TTL           time.Duration
	SchemaVersion int
	NodeID        string
	RequesterID   string
	CreatedAt     time.Time
}

// KeyWrap is the per-capsule symmetric key, encrypted under the session
// key shared between node and requester.
type KeyWrap struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Proof is the capsule's integrity proof block.
type Proof struct {
	CapsuleHash string
	NodeSig     []byte
	ContractID  string
	PlanHash    string
	SignedAt    time.Time
}

// Capsule is the full Time Capsule wire form: header, AEAD ciphertext,
// key-wrap, and proof block.
type Capsule struct {
	Header     CapsuleHeader
	IV         []byte
	Ciphertext []byte
	Tag        []byte
	KeyWrap    KeyWrap
	Proof      Proof
}

// Transfer tracks one resumable chunked capsule delivery.
type Transfer struct {
	ID         string
	CapsuleID  string
	ChunkSize  int
	Chunks     [][]byte
	AckedUpTo  int
	State      SessionState
	Resumable  bool
	LastActive time.Time
}

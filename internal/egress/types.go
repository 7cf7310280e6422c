/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package egress implements the Egress Gate (§4.10): the single point
// every outbound byte passes through before it leaves the device. It
// classifies payloads, enforces a destination allowlist, screens for
// leaked PII, and rate-limits send volume, logging every attempt whether
// it succeeds or is blocked.
package egress

import "time"

// RequestType classifies the purpose of an outbound send, distinct from
// the inbox's RequestType which classifies inbound Data Requests.
type RequestType string

const (
	RequestTypeMetadata        RequestType = "METADATA"
	RequestTypeCapsuleTransfer RequestType = "CAPSULE_TRANSFER"
	RequestTypeSignaling       RequestType = "SIGNALING"
	RequestTypeAcknowledgment  RequestType = "ACKNOWLEDGMENT"
)

// Classification is the payload class the gate assigns a send request
// before deciding whether it may leave the device.
type Classification string

const (
	ClassMetadataOnly      Classification = "METADATA_ONLY"
	ClassRawPayload        Classification = "RAW_PAYLOAD"
	ClassCiphertextCapsule Classification = "CIPHERTEXT_CAPSULE"
)

// Outcome is the terminal disposition of a send attempt.
type Outcome string

const (
	OutcomeSent               Outcome = "SENT"
	OutcomeGateDisabled       Outcome = "GATE_DISABLED"
	OutcomeUnknownDestination Outcome = "UNKNOWN_DESTINATION"
	OutcomeRawPayloadEgress   Outcome = "RAW_PAYLOAD_EGRESS"
	OutcomeForbiddenPattern   Outcome = "FORBIDDEN_PATTERN"
	OutcomeRateLimited        Outcome = "RATE_LIMITED"
	OutcomeNetworkBlocked     Outcome = "NETWORK_BLOCKED"
)

// Request is one outbound send attempt.
type Request struct {
	Destination string
	Payload     []byte
	Type        RequestType
	Headers     map[string]string
}

// Result is what Send returns on success, or is partially populated on a
// blocked attempt so callers can inspect why.
type Result struct {
	Outcome        Outcome
	Classification Classification
	Destination    string
	MatchedPurpose string
	SentAt         time.Time
}

// AllowlistEntry is one destination this node is permitted to egress to.
type AllowlistEntry struct {
	Destination string
	Purpose     string
	Active      bool
}

// Attempt is one entry in the in-process egress-attempt log, recorded for
// both successful and blocked sends.
type Attempt struct {
	ID             string
	Destination    string
	Reason         Outcome
	PayloadSize    int
	Classification Classification
	Timestamp      time.Time
}

// Stats summarizes the gate's lifetime activity.
type Stats struct {
	TotalAttempts int
	TotalBlocked  int
	AllowlistSize int
}

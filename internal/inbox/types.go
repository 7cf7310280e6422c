/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package inbox implements the Request Inbox: the single entry point a Data
// Request passes through before it may reach consent negotiation. It
// verifies the request's signature and policy stamp, rejects replays via a
// seen-identity set, and bounds how many requests may be pending at once.
package inbox

import "time"

// RequestType classifies how a Data Request was addressed to this node.
type RequestType string

const (
	RequestTypeBroadcast RequestType = "BROADCAST"
	RequestTypeGeoTopic  RequestType = "GEO_TOPIC"
	RequestTypeTargeted  RequestType = "TARGETED"
)

// OutputMode bounds how far a requester may take data off the node, from
// aggregate-only counts up to a raw, unredacted export. The Sensitivity Gate
// and Contract Engine both reuse this type; the Inbox is simply the first
// component to see it on the wire.
type OutputMode string

const (
	OutputModeAggregateOnly OutputMode = "AGGREGATE_ONLY"
	OutputModeCleanRoom     OutputMode = "CLEAN_ROOM"
	OutputModeExportAllowed OutputMode = "EXPORT_ALLOWED"
	OutputModeRawExport     OutputMode = "RAW_EXPORT"
)

// GeoResolution bounds the precision of a request's geo constraint. Distinct
// from canon.GeoResolution: a request may only ever ask at COUNTRY, REGION,
// or CITY coarseness — never EXACT, which is a property of an ingested
// event, not something a remote party gets to request.
type GeoResolution string

const (
	GeoResolutionCountry GeoResolution = "COUNTRY"
	GeoResolutionRegion  GeoResolution = "REGION"
	GeoResolutionCity    GeoResolution = "CITY"
)

// TimeWindow bounds a request to events falling between Start and End.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is well-formed (start at or before end).
func (w TimeWindow) Valid() bool {
	return !w.Start.After(w.End)
}

// GeoConstraint bounds a request to a coarse geographic area.
type GeoConstraint struct {
	RegionCode string
	Resolution GeoResolution
}

// Compensation is the offer a requester attaches to a Data Request.
type Compensation struct {
	Amount   float64
	Currency string
}

// Valid reports whether the offer is well-formed (non-negative amount).
func (c Compensation) Valid() bool {
	return c.Amount >= 0
}

// Request is the structured record the Inbox accepts, per the external
// interface's request format: identity, requester identity, type, label
// sets, time window, geo constraint, output mode, compensation offer,
// policy stamp, signature, and creation/expiry timestamps.
type Request struct {
	ID             string
	RequesterID    string
	RequesterName  string
	Type           RequestType
	RequiredLabels []string
	OptionalLabels []string
	Window         TimeWindow
	Geo            GeoConstraint
	OutputMode     OutputMode
	Compensation   Compensation
	PolicyStamp    string
	Signature      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Outcome is the result of Receive, per §4.6.
type Outcome string

const (
	OutcomeAccepted           Outcome = "ACCEPTED"
	OutcomeExpired            Outcome = "EXPIRED"
	OutcomeReplayDetected     Outcome = "REPLAY_DETECTED"
	OutcomeInvalidSignature   Outcome = "INVALID_SIGNATURE"
	OutcomeMissingPolicyStamp Outcome = "MISSING_POLICY_STAMP"
	OutcomeInvalidPolicyStamp Outcome = "INVALID_POLICY_STAMP"
	OutcomeInboxFull          Outcome = "INBOX_FULL"
)

// minSignatureLength is the structural minimum the default verifier
// enforces (§6: "signature (non-empty, minimum 64 chars for the default
// verifier)"). A real deployment swaps in a SignatureVerifier that checks
// an actual ECDSA signature over the canonical request bytes; the default
// exists so the Inbox is usable without wiring a key resolver.
const minSignatureLength = 64

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package connector defines the capability surface third-party data sources
// (health frameworks, fitness APIs, file imports) implement. Wire formats
// and OS permission UI are explicitly out of scope (§1 of the core spec);
// this package only models the minimal trait-like boundary the core depends
// on: identity, declared capabilities, authorization, sync, health, and
// revocation (§9's tagged-variant guidance — no virtual-method chains, a
// closed set of Kind variants matched explicitly at the boundary).
package connector

import (
	"context"
	"time"
)

// Kind is the closed set of connector variants the core ships drivers for.
type Kind string

const (
	KindHealth     Kind = "health"
	KindFileImport Kind = "fileimport"
)

// Capability names a unit of data a connector can produce or an action it
// can perform, advertised so the inbox/contract layers can reason about
// what a connector could ever surface before any sync runs.
type Capability string

const (
	CapabilityActivitySamples Capability = "activity_samples"
	CapabilityLocationTrace   Capability = "location_trace"
	CapabilityHealthMetrics   Capability = "health_metrics"
	CapabilityFileMetadata    Capability = "file_metadata"
)

// RawRecord is an unnormalized record as handed off by a connector, before
// canonicalization. Payload is opaque to everything except the normalizer
// registered for SourceType; the core never interprets it directly.
type RawRecord struct {
	SourceType  string
	SourceID    string
	ConnectorID string
	ContentHash string
	FetchedAt   time.Time
	Payload     map[string]any
}

// AuthResult carries the outcome of an authorization handshake. Token is
// opaque to the core; it is handed back to the connector on subsequent Sync
// calls and never logged or persisted verbatim.
type AuthResult struct {
	Authorized bool
	Token      string
	ExpiresAt  time.Time
}

// Connector is the capability surface every connector variant implements.
// Dispatch is by explicit Kind match at the boundary (registry.go), never a
// virtual-method hierarchy.
type Connector interface {
	// ID returns a stable identifier for this connector instance.
	ID() string
	// Kind returns the connector variant.
	Kind() Kind
	// Capabilities returns the set of data this connector instance can
	// produce, independent of whether authorization has been granted.
	Capabilities() []Capability
	// Authorize runs (or refreshes) the connector's authorization handshake.
	Authorize(ctx context.Context) (AuthResult, error)
	// Sync fetches raw records produced since the given cursor and returns
	// them along with an opaque cursor to resume from on the next call.
	Sync(ctx context.Context, cursor string) ([]RawRecord, string, error)
	// Healthcheck reports whether the connector can currently reach its source.
	Healthcheck(ctx context.Context) error
	// Revoke tears down authorization and releases any held credentials.
	Revoke(ctx context.Context) error
}

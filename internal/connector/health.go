/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package connector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthConfig configures a HealthConnector instance. ClientID/ClientSecret
// are environment-variable-sourced per connector instance (§6); the core
// never persists them beyond the running process.
type HealthConfig struct {
	InstanceID   string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// HealthConnector adapts an on-device health-framework data source (e.g. a
// step/heart-rate/sleep provider) to the Connector surface. The wire format
// of the underlying health API is out of scope; this type only models the
// authorize/sync/revoke lifecycle the core depends on.
type HealthConnector struct {
	cfg HealthConfig

	mu         sync.Mutex
	authorized bool
	token      string
	records    []RawRecord // injected by tests / the runtime's bridge layer
}

// NewHealthConnector constructs a HealthConnector for the given config.
func NewHealthConnector(cfg HealthConfig) *HealthConnector {
	return &HealthConnector{cfg: cfg}
}

func (h *HealthConnector) ID() string { return h.cfg.InstanceID }
func (h *HealthConnector) Kind() Kind { return KindHealth }
func (h *HealthConnector) Capabilities() []Capability {
	return []Capability{CapabilityActivitySamples, CapabilityHealthMetrics}
}

func (h *HealthConnector) Authorize(_ context.Context) (AuthResult, error) {
	if h.cfg.ClientID == "" || h.cfg.ClientSecret == "" {
		return AuthResult{}, fmt.Errorf("health connector %s: missing client credentials", h.cfg.InstanceID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorized = true
	h.token = "health-session-" + h.cfg.InstanceID
	return AuthResult{Authorized: true, Token: h.token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (h *HealthConnector) Sync(_ context.Context, cursor string) ([]RawRecord, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.authorized {
		return nil, cursor, fmt.Errorf("health connector %s: not authorized", h.cfg.InstanceID)
	}
	// records is populated out-of-band (the OS-level health bridge is out
	// of scope); Sync here only validates state and returns what was staged.
	out := h.records
	h.records = nil
	return out, fmt.Sprintf("health-%d", len(out)), nil
}

// StageRecords injects raw records as if fetched from the underlying health
// API. Used by the runtime's platform bridge (and by tests) since the
// actual OS health API integration is out of scope for the core.
func (h *HealthConnector) StageRecords(recs []RawRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, recs...)
}

func (h *HealthConnector) Healthcheck(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.authorized {
		return fmt.Errorf("health connector %s: not authorized", h.cfg.InstanceID)
	}
	return nil
}

func (h *HealthConnector) Revoke(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorized = false
	h.token = ""
	h.records = nil
	return nil
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FileImportConfig configures a FileImportConnector. No external credentials
// are needed: the user supplies files directly, so Authorize always succeeds.
type FileImportConfig struct {
	InstanceID string
}

// FileImportConnector adapts user-initiated file imports (e.g. an exported
// archive from a third-party service) to the Connector surface. Parsing the
// actual archive formats is out of scope; this type accepts pre-decoded
// records and computes a content hash per record so the feature extractor
// can mark them PARTIALLY_VERIFIED (§4.3).
type FileImportConnector struct {
	cfg FileImportConfig

	mu      sync.Mutex
	pending []RawRecord
}

// NewFileImportConnector constructs a FileImportConnector.
func NewFileImportConnector(cfg FileImportConfig) *FileImportConnector {
	return &FileImportConnector{cfg: cfg}
}

func (f *FileImportConnector) ID() string { return f.cfg.InstanceID }
func (f *FileImportConnector) Kind() Kind { return KindFileImport }
func (f *FileImportConnector) Capabilities() []Capability {
	return []Capability{CapabilityFileMetadata, CapabilityLocationTrace}
}

func (f *FileImportConnector) Authorize(_ context.Context) (AuthResult, error) {
	return AuthResult{Authorized: true}, nil
}

// Import stages one decoded record for the next Sync call, stamping a
// content hash over its payload so normalization can credit it as
// PARTIALLY_VERIFIED rather than UNVERIFIED.
func (f *FileImportConnector) Import(sourceID string, payload map[string]any) (RawRecord, error) {
	raw, err := canonicalPayloadBytes(payload)
	if err != nil {
		return RawRecord{}, fmt.Errorf("file import %s: encode payload: %w", f.cfg.InstanceID, err)
	}
	sum := sha256.Sum256(raw)

	rec := RawRecord{
		SourceType:  "fileimport",
		SourceID:    sourceID,
		ConnectorID: f.cfg.InstanceID,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now().UTC(),
		Payload:     payload,
	}

	f.mu.Lock()
	f.pending = append(f.pending, rec)
	f.mu.Unlock()
	return rec, nil
}

func (f *FileImportConnector) Sync(_ context.Context, cursor string) ([]RawRecord, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out, fmt.Sprintf("fileimport-%d", len(out)), nil
}

func (f *FileImportConnector) Healthcheck(_ context.Context) error { return nil }

func (f *FileImportConnector) Revoke(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	return nil
}

// canonicalPayloadBytes marshals a payload map deterministically, relying
// on encoding/json's automatic sorting of map keys for consistent hashing.
func canonicalPayloadBytes(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veilmesh/nodecore/internal/connector"
)

// Normalizer maps a connector's raw records into canonical events. It is
// source-specific (keyed by RawRecord.SourceType) but deterministic: the
// same raw record always yields the same canonical event, both in id
// derivation and in bucketing.
type Normalizer func(rec connector.RawRecord) (*Event, error)

// Registry dispatches a raw record to the normalizer registered for its
// SourceType.
type Registry struct {
	normalizers map[string]Normalizer
}

// NewRegistry returns a Registry with the built-in source-type normalizers
// (health, fileimport) already registered.
func NewRegistry() *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer)}
	r.Register("health", NormalizeHealthRecord)
	r.Register("fileimport", NormalizeFileImportRecord)
	return r
}

// Register adds (or replaces) the normalizer for a source type.
func (r *Registry) Register(sourceType string, fn Normalizer) {
	r.normalizers[sourceType] = fn
}

// Normalize dispatches rec to its registered normalizer.
func (r *Registry) Normalize(rec connector.RawRecord) (*Event, error) {
	fn, ok := r.normalizers[rec.SourceType]
	if !ok {
		return nil, fmt.Errorf("canon: no normalizer registered for source type %q", rec.SourceType)
	}
	return fn(rec)
}

// NormalizeHealthRecord normalizes a raw record produced by a health
// connector. It expects the payload to carry "category", "event_type", and
// "timestamp" keys at minimum; "duration_seconds" and "lat"/"lng" are optional.
func NormalizeHealthRecord(rec connector.RawRecord) (*Event, error) {
	return normalizeGeneric(rec, Provenance{
		SourceKind:    "connector",
		ConnectorID:   rec.ConnectorID,
		ContentHash:   rec.ContentHash,
		SchemaCurrent: true,
	})
}

// NormalizeFileImportRecord normalizes a raw record produced by a file
// import connector. Content-hash presence (stamped by the connector at
// import time) is what lets feature extraction mark it PARTIALLY_VERIFIED.
func NormalizeFileImportRecord(rec connector.RawRecord) (*Event, error) {
	return normalizeGeneric(rec, Provenance{
		SourceKind:    "import",
		ConnectorID:   rec.ConnectorID,
		ContentHash:   rec.ContentHash,
		SchemaCurrent: true,
	})
}

func normalizeGeneric(rec connector.RawRecord, prov Provenance) (*Event, error) {
	category, _ := rec.Payload["category"].(string)
	if category == "" {
		category = string(CategoryOther)
	}
	cat := Category(category)
	if !IsValidCategory(cat) {
		return nil, fmt.Errorf("canon: unrecognized category %q", category)
	}

	eventType, _ := rec.Payload["event_type"].(string)
	if eventType == "" {
		eventType = "unknown"
	}

	ts := rec.FetchedAt
	if raw, ok := rec.Payload["timestamp"]; ok {
		if parsed, err := parseTimestamp(raw); err == nil {
			ts = parsed
		}
	}
	ts = ts.UTC()

	var dur *time.Duration
	if raw, ok := rec.Payload["duration_seconds"]; ok {
		if secs, ok := toFloat(raw); ok {
			d := time.Duration(secs * float64(time.Second))
			dur = &d
		}
	}

	var geo *GeoLocation
	lat, latOK := toFloat(rec.Payload["lat"])
	lng, lngOK := toFloat(rec.Payload["lng"])
	if latOK && lngOK {
		res := GeoResolution(stringOr(rec.Payload["geo_resolution"], string(GeoCity)))
		g := GeoLocation{Latitude: lat, Longitude: lng, Resolution: res}
		rounded := g.Round()
		geo = &rounded
	}

	attrs := make(map[string]any, len(rec.Payload))
	for k, v := range rec.Payload {
		switch k {
		case "category", "event_type", "timestamp", "duration_seconds", "lat", "lng", "geo_resolution":
			continue
		default:
			attrs[k] = v
		}
	}

	id, err := deriveID(rec.SourceType, rec.SourceID, eventType, ts)
	if err != nil {
		return nil, err
	}

	contentHash := rec.ContentHash
	if contentHash == "" {
		contentHash, err = computeContentHash(rec)
		if err != nil {
			return nil, err
		}
	}

	return &Event{
		ID:            id,
		SourceType:    rec.SourceType,
		SourceID:      rec.SourceID,
		Category:      cat,
		EventType:     eventType,
		Timestamp:     ts,
		Duration:      dur,
		Geo:           geo,
		Attributes:    attrs,
		Provenance:    prov,
		SchemaVersion: 1,
		ContentHash:   contentHash,
	}, nil
}

// deriveID computes a deterministic event identifier: the same (sourceType,
// sourceID, eventType, timestamp) tuple always produces the same id,
// regardless of when or how many times normalization runs.
func deriveID(sourceType, sourceID, eventType string, ts time.Time) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", sourceType, sourceID, eventType, ts.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:32], nil
}

func computeContentHash(rec connector.RawRecord) (string, error) {
	raw, err := json.Marshal(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("canon: marshal payload for content hash: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func parseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	default:
		return time.Time{}, fmt.Errorf("canon: unsupported timestamp type %T", raw)
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringOr(raw any, fallback string) string {
	if s, ok := raw.(string); ok && s != "" {
		return s
	}
	return fallback
}

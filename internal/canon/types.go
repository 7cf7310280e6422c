/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package canon implements the Canonical Event Model (C3): a source-agnostic
// representation that every connector's raw records are normalized into
// before feature extraction, labeling, and indexing ever see them.
package canon

import "time"

// Category is one of the closed set of canonical event categories.
type Category string

const (
	CategoryActivity      Category = "activity"
	CategoryLocation      Category = "location"
	CategoryCommunication Category = "communication"
	CategoryMedia         Category = "media"
	CategoryTransaction   Category = "transaction"
	CategorySocial        Category = "social"
	CategoryHealth        Category = "health"
	CategoryDevice        Category = "device"
	CategoryTravel        Category = "travel"
	CategoryContent       Category = "content"
	CategoryOther         Category = "other"
)

var validCategories = map[Category]bool{
	CategoryActivity: true, CategoryLocation: true, CategoryCommunication: true,
	CategoryMedia: true, CategoryTransaction: true, CategorySocial: true,
	CategoryHealth: true, CategoryDevice: true, CategoryTravel: true,
	CategoryContent: true, CategoryOther: true,
}

// IsValidCategory reports whether c is one of the closed set of categories.
func IsValidCategory(c Category) bool { return validCategories[c] }

// GeoResolution tags the granularity a GeoLocation has been rounded to.
type GeoResolution string

const (
	GeoExact   GeoResolution = "EXACT"
	GeoCity    GeoResolution = "CITY"
	GeoRegion  GeoResolution = "REGION"
	GeoCountry GeoResolution = "COUNTRY"
	GeoNone    GeoResolution = "NONE"
)

// geoPrecision maps a resolution to the number of decimal places
// coordinates are rounded to before storage. EXACT and NONE are not rounded.
var geoPrecision = map[GeoResolution]int{
	GeoCity:    2,
	GeoRegion:  1,
	GeoCountry: 0,
}

// GeoLocation is a coarse-grained location attached to a canonical event.
// Invariant: if Resolution != EXACT the coordinates are rounded to the
// declared granularity before the event is constructed (see Round).
type GeoLocation struct {
	Latitude   float64
	Longitude  float64
	Resolution GeoResolution
}

// Round returns g with its coordinates rounded to the precision implied by
// its resolution tag. EXACT and NONE pass through unchanged.
func (g GeoLocation) Round() GeoLocation {
	places, ok := geoPrecision[g.Resolution]
	if !ok {
		return g
	}
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	g.Latitude = roundTo(g.Latitude, scale)
	g.Longitude = roundTo(g.Longitude, scale)
	return g
}

func roundTo(v, scale float64) float64 {
	if scale == 1 {
		return float64(int64(v))
	}
	return float64(int64(v*scale)) / scale
}

// Provenance records where a canonical event came from.
type Provenance struct {
	// SourceKind is one of "connector", "import", "manual".
	SourceKind string
	// ConnectorID identifies the connector instance, when SourceKind is "connector".
	ConnectorID string
	// ContentHash is a hex SHA-256 of the raw record, when available (user
	// imports with a verifiable content hash are PARTIALLY_VERIFIED per §4.3).
	ContentHash string
	// SchemaCurrent reports whether the raw record matched the connector's
	// current schema version at normalization time.
	SchemaCurrent bool
}

// Event is the canonical, source-agnostic event representation (§3 C3).
type Event struct {
	ID            string
	SourceType    string
	SourceID      string
	Category      Category
	EventType     string
	Timestamp     time.Time
	Duration      *time.Duration
	Geo           *GeoLocation
	Attributes    map[string]any
	Provenance    Provenance
	SchemaVersion int
	ContentHash   string
}

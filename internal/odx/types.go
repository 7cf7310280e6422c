/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package odx implements the ODX Index (C6): the privacy-safe facet index
// built from label sets and extracted features. It is the only data
// structure ever visible to a coordinator, so every entry is validated at
// construction rather than trusted after the fact.
package odx

import (
	"regexp"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/ontology"
)

// timeBucketPattern matches the coarse time-bucket formats the index
// accepts: a bare year, an ISO week, a year-month, or a full date. Anything
// finer (hours, minutes) is rejected at construction.
var timeBucketPattern = regexp.MustCompile(`^\d{4}(-W\d{2}|-\d{2}(-\d{2})?)?$`)

// preciseCoordinatePattern matches a decimal coordinate carrying three or
// more fractional digits — precise enough to re-identify a location, and
// therefore never allowed in a geo-bucket string.
var preciseCoordinatePattern = regexp.MustCompile(`\d+\.\d{3,}`)

// Quality classifies the trustworthiness of the events an entry aggregates,
// mirroring the dominant features.VerificationLevel among its contributors.
type Quality string

const (
	QualityVerified          Quality = "VERIFIED"
	QualityPartiallyVerified Quality = "PARTIALLY_VERIFIED"
	QualityUnverified        Quality = "UNVERIFIED"
)

// Entry is a single aggregated facet in the index: a (facet-key,
// time-bucket, geo-bucket, ontology-version) tuple with a non-negative
// count and the privacy metadata a coordinator needs without ever seeing
// a raw event.
type Entry struct {
	FacetKey        string
	TimeBucket      string
	GeoBucket       string // empty when the facet carries no geo dimension
	Count           int64
	Quality         Quality
	PrivacyFloor    int
	GeoResolution   canon.GeoResolution
	TimeResolution  string
	OntologyVersion int
}

// Key returns the tuple construction and aggregation are keyed on.
func (e Entry) Key() EntryKey {
	return EntryKey{
		FacetKey:        e.FacetKey,
		TimeBucket:      e.TimeBucket,
		GeoBucket:       e.GeoBucket,
		OntologyVersion: e.OntologyVersion,
	}
}

// EntryKey is the idempotency key aggregation is keyed on (§4.5).
type EntryKey struct {
	FacetKey        string
	TimeBucket      string
	GeoBucket       string
	OntologyVersion int
}

// New validates and constructs an Entry. Construction fails with an
// *errs.Error of Kind ODX_SAFETY when the time bucket is finer than the
// coarse format, the geo resolution is EXACT, the geo bucket carries a
// precise coordinate, the facet key contains a forbidden word, or the count
// or privacy floor is negative. A count below the privacy floor is not a
// construction error: New accepts it, and MeetsFloor and Index.Snapshot
// keep such an entry from being exposed.
func New(facetKey, timeBucket, geoBucket string, count int64, quality Quality, privacyFloor int, geoResolution canon.GeoResolution, timeResolution string, ontologyVersion int) (*Entry, error) {
	if !timeBucketPattern.MatchString(timeBucket) {
		return nil, errs.New(errs.KindODXSafety, "time bucket does not match the coarse format")
	}
	if geoResolution == canon.GeoExact {
		return nil, errs.New(errs.KindODXSafety, "exact geo resolution is never allowed in the index")
	}
	if preciseCoordinatePattern.MatchString(geoBucket) {
		return nil, errs.New(errs.KindODXSafety, "geo bucket contains a precise coordinate")
	}
	if ontology.ContainsForbiddenWord(facetKey) {
		return nil, errs.New(errs.KindODXSafety, "facet key contains a forbidden word")
	}
	if count < 0 {
		return nil, errs.New(errs.KindODXSafety, "count must be non-negative")
	}
	if privacyFloor < 0 {
		return nil, errs.New(errs.KindODXSafety, "privacy floor must be non-negative")
	}
	return &Entry{
		FacetKey:        facetKey,
		TimeBucket:      timeBucket,
		GeoBucket:       geoBucket,
		Count:           count,
		Quality:         quality,
		PrivacyFloor:    privacyFloor,
		GeoResolution:   geoResolution,
		TimeResolution:  timeResolution,
		OntologyVersion: ontologyVersion,
	}, nil
}

// MeetsFloor reports whether the entry's count satisfies its own privacy
// floor, i.e. whether it is safe to expose as-is rather than being
// coalesced into a coarser bucket or dropped.
func (e Entry) MeetsFloor() bool {
	return e.Count >= int64(e.PrivacyFloor)
}

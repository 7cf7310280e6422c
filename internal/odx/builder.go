/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"fmt"
	"strconv"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/labeler"
)

const defaultPrivacyFloor = 10

// geoPrecision mirrors canon's own rounding precision per resolution, so a
// geo-bucket string built from an already-rounded GeoLocation never carries
// more fractional digits than its resolution allows.
var geoPrecision = map[canon.GeoResolution]int{
	canon.GeoCity:    2,
	canon.GeoRegion:  1,
	canon.GeoCountry: 0,
}

// Build converts a labeled event into one candidate Entry per label,
// keyed per §4.5. Facet keys use the label's full "namespace:category:value"
// form rather than bare "namespace:category": collapsing the value away
// would make an entry for, say, TIME:period indistinguishable between NIGHT
// and MORNING, which defeats the point of an index a coordinator can query.
//
// A label that fails one of New's safety invariants is omitted from the
// result rather than aborting the whole event; the failure is still
// returned so the caller can audit-log it (§4.5's safety class is "never
// recovered locally, always surfaced").
func Build(e *canon.Event, ls labeler.LabelSet) ([]*Entry, []error) {
	timeBucket := monthBucket(e)
	geoBucket, geoResolution := geoBucketFor(e)
	quality := qualityFromLabels(ls.Labels)
	floor := privacyFloorFromLabels(ls.Labels)

	var entries []*Entry
	var errs []error
	for _, l := range ls.Labels {
		entry, err := New(l.Key(), timeBucket, geoBucket, 1, quality, floor, geoResolution, "MONTH", ls.OntologyVersion)
		if err != nil {
			errs = append(errs, fmt.Errorf("odx: facet %q: %w", l.Key(), err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}

func monthBucket(e *canon.Event) string {
	return fmt.Sprintf("%04d-%02d", e.Timestamp.Year(), int(e.Timestamp.Month()))
}

func geoBucketFor(e *canon.Event) (string, canon.GeoResolution) {
	if e.Geo == nil || e.Geo.Resolution == canon.GeoNone {
		return "", canon.GeoNone
	}
	precision, ok := geoPrecision[e.Geo.Resolution]
	if !ok {
		// EXACT has no precision entry (normalization leaves EXACT
		// coordinates unrounded); it yields an empty bucket and New then
		// rejects the entry for its EXACT resolution.
		return "", e.Geo.Resolution
	}
	format := fmt.Sprintf("%%.%df,%%.%df", precision, precision)
	return fmt.Sprintf(format, e.Geo.Latitude, e.Geo.Longitude), e.Geo.Resolution
}

func qualityFromLabels(labels []labeler.Label) Quality {
	for _, l := range labels {
		if l.Namespace == labeler.NamespaceQuality && l.Category == "verification" {
			switch l.Value {
			case "VERIFIED":
				return QualityVerified
			case "PARTIALLY_VERIFIED":
				return QualityPartiallyVerified
			default:
				return QualityUnverified
			}
		}
	}
	return QualityUnverified
}

func privacyFloorFromLabels(labels []labeler.Label) int {
	for _, l := range labels {
		if l.Namespace == labeler.NamespacePrivacy && l.Category == "floor" {
			if v, err := strconv.Atoi(l.Value); err == nil {
				return v
			}
		}
	}
	return defaultPrivacyFloor
}

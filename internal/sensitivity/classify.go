/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package sensitivity

import "strings"

// labelActivation is the set of boolean facts the combination table's CEL
// expressions are evaluated against, derived once per Assess call from the
// raw requested label strings.
type labelActivation struct {
	hasHealth     bool
	hasBiometric  bool
	hasMinor      bool
	hasLocation   bool
	hasPreciseGeo bool
}

// classify scans labels for the keywords the combination table names.
// Labels may arrive either as the labeler's "namespace:category:value" key
// form or as a flatter dotted form a policy stamp names (e.g.
// "health.biometric"); matching is done by case-insensitive substring
// rather than exact field parsing so either form is recognized without the
// gate needing to know which component produced the label.
func classify(labels []string) labelActivation {
	var a labelActivation
	for _, l := range labels {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "health") {
			a.hasHealth = true
		}
		if strings.Contains(lower, "biometric") {
			a.hasBiometric = true
		}
		if strings.Contains(lower, "minor") || strings.Contains(lower, "child") {
			a.hasMinor = true
		}
		if strings.Contains(lower, "location") {
			a.hasLocation = true
		}
		if isPreciseGeo(lower) {
			a.hasPreciseGeo = true
		}
	}
	return a
}

// IsPreciseGeoLabel reports whether label names a geo facet at city-level
// or exact precision. Exported so the Contract Engine's
// apply-forced-defaults can strip the same labels the gate used to decide
// COARSE_GEO is required, keeping one definition of "precise" shared
// between the two components.
func IsPreciseGeoLabel(label string) bool {
	return isPreciseGeo(strings.ToLower(label))
}

// isPreciseGeo reports whether a lowercased label names a geo facet at
// city-level or exact precision, as opposed to a country/region-level one.
func isPreciseGeo(lower string) bool {
	if !strings.Contains(lower, "geo") {
		return false
	}
	return strings.Contains(lower, "exact") || strings.Contains(lower, "precise") || strings.Contains(lower, "city")
}

func (a labelActivation) celInput() map[string]any {
	return map[string]any{
		"has_health":      a.hasHealth,
		"has_biometric":   a.hasBiometric,
		"has_minor":       a.hasMinor,
		"has_location":    a.hasLocation,
		"has_precise_geo": a.hasPreciseGeo,
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package labeler

import (
	"fmt"
	"strings"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/features"
)

// privacyFloors gives the minimum k-anonymity group size per category; more
// sensitive categories demand a larger floor before ODX will expose an
// aggregate (§4.5 consumes this label downstream).
var privacyFloors = map[canon.Category]int{
	canon.CategoryHealth:   50,
	canon.CategoryLocation: 20,
	canon.CategorySocial:   20,
}

const defaultPrivacyFloor = 10

// highSensitivityCategories mirrors the categories the sensitivity gate
// (§4.7) treats as baseline-sensitive.
var highSensitivityCategories = map[canon.Category]bool{
	canon.CategoryHealth:   true,
	canon.CategoryLocation: true,
}

// coreRuleFamilies are the rule functions that always execute, independent
// of any registered behavior rule (§4.4).
var coreRuleFamilies = []func(*canon.Event, *features.Features) []Label{
	ruleDomainFromCategory,
	ruleTimeBucket,
	ruleGeoTypeFromAttributes,
	ruleQuality,
	rulePrivacy,
	ruleSource,
}

func ruleDomainFromCategory(e *canon.Event, _ *features.Features) []Label {
	return []Label{{
		Namespace:  NamespaceDomain,
		Category:   "category",
		Value:      string(e.Category),
		Confidence: 1.0,
		RuleID:     "domain-from-category",
	}}
}

func ruleTimeBucket(_ *canon.Event, f *features.Features) []Label {
	return []Label{
		{Namespace: NamespaceTime, Category: "period", Value: f.Time.TimeOfDay, Confidence: 1.0, RuleID: "time-bucket"},
		{Namespace: NamespaceTime, Category: "day-type", Value: f.Time.DayType, Confidence: 1.0, RuleID: "time-bucket"},
		{Namespace: NamespaceTime, Category: "season", Value: seasonForMonth(f.Time.Month), Confidence: 1.0, RuleID: "time-bucket"},
	}
}

func seasonForMonth(month int) string {
	switch month {
	case 12, 1, 2:
		return "WINTER"
	case 3, 4, 5:
		return "SPRING"
	case 6, 7, 8:
		return "SUMMER"
	default:
		return "FALL"
	}
}

func ruleGeoTypeFromAttributes(e *canon.Event, _ *features.Features) []Label {
	if e.Geo == nil {
		return nil
	}
	return []Label{{
		Namespace:  NamespaceGeo,
		Category:   "type",
		Value:      string(e.Geo.Resolution),
		Confidence: 1.0,
		RuleID:     "geo-type-from-attributes",
	}}
}

func ruleQuality(_ *canon.Event, f *features.Features) []Label {
	return []Label{
		{Namespace: NamespaceQuality, Category: "source", Value: f.Quality.SourceProvenance, Confidence: 1.0, RuleID: "quality"},
		{Namespace: NamespaceQuality, Category: "verification", Value: string(f.Quality.Verification), Confidence: 1.0, RuleID: "quality"},
		{Namespace: NamespaceQuality, Category: "completeness", Value: fmt.Sprintf("%.2f", f.Quality.Completeness), Confidence: f.Quality.Confidence, RuleID: "quality"},
	}
}

func rulePrivacy(e *canon.Event, f *features.Features) []Label {
	sensitivity := "LOW"
	if highSensitivityCategories[e.Category] {
		sensitivity = "HIGH"
	}
	floor := defaultPrivacyFloor
	if v, ok := privacyFloors[e.Category]; ok {
		floor = v
	}
	piiFlag := "CLEAN"
	if !features.ValidateNoLeakage(f) {
		piiFlag = "FLAGGED"
	}
	return []Label{
		{Namespace: NamespacePrivacy, Category: "sensitivity", Value: sensitivity, Confidence: 1.0, RuleID: "privacy"},
		{Namespace: NamespacePrivacy, Category: "floor", Value: fmt.Sprintf("%d", floor), Confidence: 1.0, RuleID: "privacy"},
		{Namespace: NamespacePrivacy, Category: "pii-flag", Value: piiFlag, Confidence: 1.0, RuleID: "privacy"},
	}
}

func ruleSource(e *canon.Event, _ *features.Features) []Label {
	origin := strings.ToUpper(e.Provenance.SourceKind)
	if origin == "" {
		origin = "MANUAL"
	}
	return []Label{{
		Namespace:  NamespaceSource,
		Category:   "origin",
		Value:      origin,
		Confidence: 1.0,
		RuleID:     "source",
	}}
}

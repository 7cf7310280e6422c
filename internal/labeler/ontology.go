/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package labeler

import "sort"

// categoryKey pairs a namespace with a category for the valid-pairs set.
type categoryKey struct {
	Namespace Namespace
	Category  string
}

// MigrationFunc transforms a LabelSet produced under one ontology version
// into its equivalent under a newer version. Unregistered (from, to) paths
// default to the identity transform (§4.4).
type MigrationFunc func(LabelSet) LabelSet

// Ontology records the valid (namespace, category) pairs and, for some
// categories, the closed set of values a label may take. It also holds the
// registered version-to-version migration functions.
type Ontology struct {
	version      int
	validPairs   map[categoryKey]bool
	closedValues map[categoryKey]map[string]bool // nil entry means open-ended
	migrations   map[[2]int]MigrationFunc
}

// NewOntology returns the current (version 1) ontology with the core rule
// families' (namespace, category) pairs registered. Additional pairs can be
// added with RegisterCategory before labeling begins.
func NewOntology() *Ontology {
	o := &Ontology{
		version:      1,
		validPairs:   make(map[categoryKey]bool),
		closedValues: make(map[categoryKey]map[string]bool),
		migrations:   make(map[[2]int]MigrationFunc),
	}
	o.registerCoreCategories()
	return o
}

func (o *Ontology) registerCoreCategories() {
	o.RegisterCategory(NamespaceDomain, "category", nil)
	o.RegisterCategory(NamespaceTime, "period", []string{"NIGHT", "MORNING", "AFTERNOON", "EVENING"})
	o.RegisterCategory(NamespaceTime, "day-type", []string{"WEEKDAY", "WEEKEND"})
	o.RegisterCategory(NamespaceTime, "season", []string{"WINTER", "SPRING", "SUMMER", "FALL"})
	o.RegisterCategory(NamespaceGeo, "type", nil)
	o.RegisterCategory(NamespaceQuality, "source", nil)
	o.RegisterCategory(NamespaceQuality, "verification", []string{"VERIFIED", "PARTIALLY_VERIFIED", "UNVERIFIED"})
	o.RegisterCategory(NamespaceQuality, "completeness", nil)
	o.RegisterCategory(NamespacePrivacy, "sensitivity", nil)
	o.RegisterCategory(NamespacePrivacy, "floor", nil)
	o.RegisterCategory(NamespacePrivacy, "pii-flag", []string{"CLEAN", "FLAGGED"})
	o.RegisterCategory(NamespaceSource, "origin", []string{"CONNECTOR", "IMPORT", "MANUAL"})
	o.RegisterCategory(NamespaceBehavior, "high-intensity", []string{"TRUE"})
	o.RegisterCategory(NamespaceBehavior, "long-duration", []string{"TRUE"})
	o.RegisterCategory(NamespaceBehavior, "night-activity", []string{"TRUE"})
}

// RegisterCategory adds a valid (namespace, category) pair. A nil values
// slice means the category's values are open-ended; a non-nil slice closes
// it to exactly those values.
func (o *Ontology) RegisterCategory(ns Namespace, category string, values []string) {
	key := categoryKey{Namespace: ns, Category: category}
	o.validPairs[key] = true
	if values == nil {
		o.closedValues[key] = nil
		return
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	o.closedValues[key] = set
}

// Version returns the ontology's current version.
func (o *Ontology) Version() int { return o.version }

// Valid reports whether a label's (namespace, category) pair is registered
// and, if the category has a closed value set, whether the label's value
// belongs to it.
func (o *Ontology) Valid(l Label) bool {
	key := categoryKey{Namespace: l.Namespace, Category: l.Category}
	if !o.validPairs[key] {
		return false
	}
	values, hasClosedSet := o.closedValues[key]
	if !hasClosedSet || values == nil {
		return true
	}
	return values[l.Value]
}

// Filter returns only the labels valid under this ontology.
func (o *Ontology) Filter(labels []Label) []Label {
	out := make([]Label, 0, len(labels))
	for _, l := range labels {
		if o.Valid(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// RegisterMigration registers a migration function from version `from` to
// version `to`.
func (o *Ontology) RegisterMigration(from, to int, fn MigrationFunc) {
	o.migrations[[2]int{from, to}] = fn
}

// SetVersion bumps the ontology's current version. Existing label sets are
// not retroactively migrated; callers migrate them explicitly with Migrate.
func (o *Ontology) SetVersion(v int) { o.version = v }

// Migrate applies the registered migration from ls.OntologyVersion to the
// ontology's current version. An unregistered path is the identity
// transform (§4.4): the label set is returned unchanged except for its
// stamped version.
func (o *Ontology) Migrate(ls LabelSet) LabelSet {
	if ls.OntologyVersion == o.version {
		return ls
	}
	fn, ok := o.migrations[[2]int{ls.OntologyVersion, o.version}]
	if !ok {
		ls.OntologyVersion = o.version
		return ls
	}
	migrated := fn(ls)
	migrated.OntologyVersion = o.version
	return migrated
}

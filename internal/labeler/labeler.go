/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package labeler

import (
	"fmt"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/features"
)

// Labeler ties the ontology together with the core rule families and the
// registered behavior rules to produce an explainable LabelSet for a
// canonical event (§4.4).
type Labeler struct {
	ontology *Ontology
	behavior *BehaviorEvaluator
}

// New builds a Labeler with the default ontology and default behavior
// rules registered.
func New() (*Labeler, error) {
	be, err := NewBehaviorEvaluator()
	if err != nil {
		return nil, fmt.Errorf("labeler: %w", err)
	}
	return &Labeler{ontology: NewOntology(), behavior: be}, nil
}

// NewWithOntology builds a Labeler against a caller-supplied ontology,
// e.g. one with additional categories registered beyond the core set.
func NewWithOntology(o *Ontology, be *BehaviorEvaluator) *Labeler {
	return &Labeler{ontology: o, behavior: be}
}

// Ontology returns the labeler's ontology so callers can register
// additional categories or migrations before labeling begins.
func (l *Labeler) Ontology() *Ontology { return l.ontology }

// Behavior returns the labeler's behavior rule evaluator so callers can
// register additional behavior rules at runtime.
func (l *Labeler) Behavior() *BehaviorEvaluator { return l.behavior }

// Label runs the always-executing core rule families and the registered
// behavior rules against an event and its extracted features, filters the
// result through the ontology, and returns the resulting LabelSet. Every
// label carries the identifier of the rule that produced it, satisfying
// the explainability requirement: no label is ever emitted without a
// traceable origin.
func (l *Labeler) Label(e *canon.Event, f *features.Features) LabelSet {
	var labels []Label
	for _, rule := range coreRuleFamilies {
		labels = append(labels, rule(e, f)...)
	}
	labels = append(labels, l.behavior.Evaluate(e, f)...)

	return LabelSet{
		EventID:         e.ID,
		Labels:          l.ontology.Filter(labels),
		OntologyVersion: l.ontology.Version(),
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package labeler

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/features"
)

// CompiledBehaviorRule holds a pre-compiled CEL program for one registered
// behavior rule (§4.4). Unlike the core rule families, behavior rules are
// data, not code: new ones can be registered at runtime without a binary
// rebuild, and each carries the exact expression text for the explainability
// requirement.
type CompiledBehaviorRule struct {
	Name       string
	Category   string
	Expression string
	Program    cel.Program
}

// BehaviorEvaluator compiles and evaluates the registered behavior rules
// against a shared CEL environment, mirroring the teacher's
// ee/pkg/policy.Evaluator compile-once/evaluate-many shape.
type BehaviorEvaluator struct {
	env   *cel.Env
	rules []CompiledBehaviorRule
}

// NewBehaviorEvaluator builds a BehaviorEvaluator with the default
// high-intensity, long-duration, and night-activity rules registered.
func NewBehaviorEvaluator() (*BehaviorEvaluator, error) {
	env, err := newBehaviorCELEnv()
	if err != nil {
		return nil, fmt.Errorf("labeler: building behavior CEL environment: %w", err)
	}
	be := &BehaviorEvaluator{env: env}
	for _, def := range defaultBehaviorRules {
		if err := be.Register(def.name, def.category, def.expression); err != nil {
			return nil, err
		}
	}
	return be, nil
}

func newBehaviorCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("duration_bucket", cel.StringType),
		cel.Variable("distance_bucket", cel.StringType),
		cel.Variable("count_bucket", cel.StringType),
		cel.Variable("time_of_day", cel.StringType),
		cel.Variable("day_type", cel.StringType),
		cel.Variable("hour_of_day", cel.IntType),
	)
}

type behaviorRuleDef struct {
	name       string
	category   string
	expression string
}

// defaultBehaviorRules are the registered behavior rules named in §4.4.
// high-intensity and long-duration are expressed over the bucketed
// features, so an empty or unmatched bucket simply evaluates false;
// night-activity reads the event's hour of day.
var defaultBehaviorRules = []behaviorRuleDef{
	{
		name:       "high-intensity",
		category:   "high-intensity",
		expression: `duration_bucket in ["LONG", "VERY_LONG", "EXTENDED"] && distance_bucket in ["LONG", "VERY_LONG", "DISTANT"]`,
	},
	{
		name:       "long-duration",
		category:   "long-duration",
		expression: `duration_bucket in ["VERY_LONG", "EXTENDED"]`,
	},
	{
		name:       "night-activity",
		category:   "night-activity",
		expression: `hour_of_day < 6 || hour_of_day >= 22`,
	},
}

// Register compiles and adds a behavior rule. Registering a rule under a
// name that already exists replaces it.
func (be *BehaviorEvaluator) Register(name, category, expression string) error {
	ast, issues := be.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("labeler: compiling behavior rule %q: %w", name, issues.Err())
	}
	program, err := be.env.Program(ast)
	if err != nil {
		return fmt.Errorf("labeler: building program for behavior rule %q: %w", name, err)
	}
	rule := CompiledBehaviorRule{Name: name, Category: category, Expression: expression, Program: program}
	for i, existing := range be.rules {
		if existing.Name == name {
			be.rules[i] = rule
			return nil
		}
	}
	be.rules = append(be.rules, rule)
	return nil
}

// Evaluate runs every registered behavior rule against the event/feature
// pair and returns a BEHAVIOR label for each rule that matched. A rule that
// errors during evaluation is skipped rather than failing the whole batch,
// since behavior rules are best-effort enrichment, not safety gates.
func (be *BehaviorEvaluator) Evaluate(e *canon.Event, f *features.Features) []Label {
	activation := buildBehaviorActivation(e, f)
	var labels []Label
	for _, rule := range be.rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := asBool(out)
		if !ok || !matched {
			continue
		}
		labels = append(labels, Label{
			Namespace:  NamespaceBehavior,
			Category:   rule.Category,
			Value:      "TRUE",
			Confidence: 1.0,
			RuleID:     rule.Name,
		})
	}
	return labels
}

func buildBehaviorActivation(e *canon.Event, f *features.Features) map[string]any {
	return map[string]any{
		"category":        string(e.Category),
		"event_type":      e.EventType,
		"duration_bucket": string(f.Numeric.Duration),
		"distance_bucket": string(f.Numeric.Distance),
		"count_bucket":    string(f.Numeric.Count),
		"time_of_day":     f.Time.TimeOfDay,
		"day_type":        f.Time.DayType,
		"hour_of_day":     int64(f.Time.HourOfDay),
	}
}

func asBool(val ref.Val) (bool, bool) {
	if val.Type() != types.BoolType {
		return false, false
	}
	b, ok := val.Value().(bool)
	return b, ok
}

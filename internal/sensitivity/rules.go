/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package sensitivity

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/veilmesh/nodecore/internal/inbox"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// combinationRule is one row of the risk combination table (§4.7): a
// boolean condition over the label activation, and the risk floor it
// imposes when the condition holds. Grounded on the same compile-once,
// evaluate-many CEL shape the Labeler's behavior rules use
// (internal/labeler/rules_behavior.go), generalized from "does this
// behavior label fire" to "does this risk floor apply".
type combinationRule struct {
	name    string
	program cel.Program
	risk    RiskLevel
}

// protectionRule is a boolean condition that, when true, forces a
// protection into the assessment's result regardless of which
// combination row matched.
type protectionRule struct {
	protection Protection
	program    cel.Program
}

// Gate assesses requested label sets against the combination table.
type Gate struct {
	env         *cel.Env
	combination []combinationRule
	protections []protectionRule
	metrics     *metrics.SensitivityMetrics
}

// WithMetrics wires Prometheus metrics into the Gate.
func (g *Gate) WithMetrics(m *metrics.SensitivityMetrics) *Gate {
	g.metrics = m
	return g
}

func newSensitivityCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("has_health", cel.BoolType),
		cel.Variable("has_biometric", cel.BoolType),
		cel.Variable("has_minor", cel.BoolType),
		cel.Variable("has_location", cel.BoolType),
		cel.Variable("has_precise_geo", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("sensitivity: build CEL env: %w", err)
	}
	return env, nil
}

func compileCondition(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("sensitivity: compile %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("sensitivity: program %q: %w", expression, err)
	}
	return prg, nil
}

// combinationDefs mirrors §4.7's table: a requested label set matching any
// row's condition raises the floor to at least that row's risk. Rows are
// independent and cumulative — a label set can match several at once
// (e.g. the last row implies the second), and the assessed risk is the
// highest floor any matched row imposes.
var combinationDefs = []struct {
	name       string
	expression string
	risk       RiskLevel
}{
	{"sensitive-category-present", `has_health || has_biometric || has_minor || has_precise_geo`, RiskMedium},
	{"health-and-minor", `has_health && has_minor`, RiskHigh},
	{"biometric-and-minor", `has_biometric && has_minor`, RiskCritical},
	{"health-minor-geo", `has_health && has_minor && (has_precise_geo || has_location)`, RiskCritical},
}

// protectionDefs maps each forced protection to the union of every row in
// §4.7's table that names it.
var protectionDefs = []struct {
	protection Protection
	expression string
}{
	{ProtectionCoarseGeo, `has_precise_geo || (has_health && has_minor && has_location)`},
	{ProtectionCleanRoomOnly, `has_minor && (has_health || has_biometric)`},
	{ProtectionNoExport, `(has_biometric && has_minor) || (has_health && has_minor && (has_precise_geo || has_location))`},
	{ProtectionAdditionalConsent, `has_health && has_minor && (has_precise_geo || has_location)`},
}

// NewGate compiles the default combination table into a ready-to-use Gate.
func NewGate() (*Gate, error) {
	env, err := newSensitivityCELEnv()
	if err != nil {
		return nil, err
	}

	g := &Gate{env: env}
	for _, d := range combinationDefs {
		prg, err := compileCondition(env, d.expression)
		if err != nil {
			return nil, err
		}
		g.combination = append(g.combination, combinationRule{name: d.name, program: prg, risk: d.risk})
	}
	for _, d := range protectionDefs {
		prg, err := compileCondition(env, d.expression)
		if err != nil {
			return nil, err
		}
		g.protections = append(g.protections, protectionRule{protection: d.protection, program: prg})
	}
	return g, nil
}

// Assess evaluates (labels, outputMode) against the combination table and
// returns the resulting risk level and forced protection set (§4.7).
// outputMode is accepted for interface symmetry with the spec's stated
// input shape; the table itself conditions only on label presence.
func (g *Gate) Assess(labels []string, _ inbox.OutputMode) Assessment {
	input := classify(labels).celInput()

	risk := RiskNone
	for _, r := range g.combination {
		if matched(r.program, input) {
			risk = higherOf(risk, r.risk)
		}
	}

	protections := make(ProtectionSet)
	for _, p := range g.protections {
		if matched(p.program, input) {
			protections.Add(p.protection)
		}
	}

	if g.metrics != nil {
		g.metrics.RecordAssessment(string(risk))
		for _, p := range protections.Slice() {
			g.metrics.RecordProtectionForced(string(p))
		}
	}

	return Assessment{RiskLevel: risk, Protections: protections}
}

func matched(prg cel.Program, input map[string]any) bool {
	out, _, err := prg.Eval(input)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func sampleData() Dataset {
	return Dataset{
		{"hr": 70.0, "steps": 1200.0},
		{"hr": 85.0, "steps": 3000.0},
	}
}

func TestExecuteHappyPathProducesPackedResult(t *testing.T) {
	now := time.Now()
	vm := New(testPlanVMCfg(), WithClock(func() time.Time { return now }))

	result, err := vm.Execute(context.Background(), validPlan(now), sampleData())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result == nil || len(result.Data) != 2 {
		t.Fatalf("expected packed result with 2 records, got %+v", result)
	}
	if result.TTL != 60*time.Second {
		t.Fatalf("expected TTL 60s, got %v", result.TTL)
	}
}

func TestExecuteRejectsInvalidPlanBeforeRunningAnySteps(t *testing.T) {
	now := time.Now()
	vm := New(testPlanVMCfg(), WithClock(func() time.Time { return now }))

	p := validPlan(now)
	p.Signature = ""

	if _, err := vm.Execute(context.Background(), p, sampleData()); errs.KindOf(err) != errs.KindInvalidSignature {
		t.Fatalf("expected validation to run before execution, got %v", err)
	}
}

func TestExecuteChainsMultipleOperators(t *testing.T) {
	now := time.Now()
	vm := New(testPlanVMCfg(), WithClock(func() time.Time { return now }))

	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: OpFilter, Parameters: map[string]any{"field": "hr"}},
		{Index: 1, Operator: OpProject, OutputFields: []string{"hr"}},
		{Index: 2, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 30.0}},
	}

	result, err := vm.Execute(context.Background(), p, sampleData())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, rec := range result.Data {
		if len(rec) != 1 {
			t.Fatalf("expected only hr field to survive PROJECT, got %v", rec)
		}
	}
}

func TestExecuteRejectsExportWhenOutputModeForbidsIt(t *testing.T) {
	now := time.Now()
	vm := New(testPlanVMCfg(), WithClock(func() time.Time { return now }))

	p := validPlan(now)
	p.Output.ExportAllowed = false
	p.Steps = []Step{
		{Index: 0, Operator: OpExport, Parameters: map[string]any{"format": "csv"}},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 30.0}},
	}
	cfg := testPlanVMCfg()
	cfg.AllowedOperators = append(cfg.AllowedOperators, "EXPORT")

	vm = New(cfg, WithClock(func() time.Time { return now }))
	if _, err := vm.Execute(context.Background(), p, sampleData()); err == nil {
		t.Fatal("expected EXPORT to be rejected when output mode forbids it")
	}
}

func TestExecutePermitsExportWhenOutputModeAllowsIt(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Output.ExportAllowed = true
	p.Steps = []Step{
		{Index: 0, Operator: OpExport, Parameters: map[string]any{"format": "csv"}},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 30.0}},
	}
	cfg := testPlanVMCfg()
	cfg.AllowedOperators = append(cfg.AllowedOperators, "EXPORT")

	vm := New(cfg, WithClock(func() time.Time { return now }))
	result, err := vm.Execute(context.Background(), p, sampleData())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, rec := range result.Data {
		if rec["_export_requested"] != "csv" {
			t.Fatal("expected export tag on every record")
		}
	}
}

func TestExecuteConvertsOperatorErrorToStepFailure(t *testing.T) {
	now := time.Now()
	cfg := testPlanVMCfg()
	cfg.AllowedOperators = append(cfg.AllowedOperators, "BUCKETIZE")

	vm := New(cfg, WithClock(func() time.Time { return now }))
	p := validPlan(now)
	p.Steps = []Step{
		// missing "field" parameter triggers an error return, not a panic,
		// but exercises the same structured-failure path BUCKETIZE and
		// friends rely on for malformed parameters.
		{Index: 0, Operator: OpBucketize, Parameters: map[string]any{}},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 30.0}},
	}

	_, err := vm.Execute(context.Background(), p, sampleData())
	if err == nil {
		t.Fatal("expected a structured step failure for malformed BUCKETIZE parameters")
	}
	var sf *StepFailure
	if !asStepFailure(err, &sf) {
		t.Fatalf("expected *StepFailure, got %T: %v", err, err)
	}
	if sf.StepIndex != 0 {
		t.Fatalf("expected step index 0, got %d", sf.StepIndex)
	}
}

func asStepFailure(err error, out **StepFailure) bool {
	sf, ok := err.(*StepFailure)
	if ok {
		*out = sf
	}
	return ok
}

func TestExecuteWithMetricsRecordsOutcome(t *testing.T) {
	now := time.Now()
	reg := prometheus.NewRegistry()
	m := metrics.NewPlanVMMetricsWithRegistry(reg)
	vm := New(testPlanVMCfg(), WithClock(func() time.Time { return now }), WithMetrics(m))

	if _, err := vm.Execute(context.Background(), validPlan(now), sampleData()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := testutil.ToFloat64(m.PlansExecutedTotal.WithLabelValues("COMPLETED")); got != 1 {
		t.Fatalf("expected 1 COMPLETED outcome recorded, got %v", got)
	}
}

func TestExecuteWithDeterministicSampleRand(t *testing.T) {
	now := time.Now()
	cfg := testPlanVMCfg()
	cfg.AllowedOperators = append(cfg.AllowedOperators, "SAMPLE")

	data := make(Dataset, 100)
	for i := range data {
		data[i] = Record{"i": i}
	}

	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: OpSample, Parameters: map[string]any{"rate": 0.3}},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 30.0}},
	}

	vm1 := New(cfg, WithClock(func() time.Time { return now }), WithRand(rand.New(rand.NewSource(7))))
	r1, err := vm1.Execute(context.Background(), p, data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	vm2 := New(cfg, WithClock(func() time.Time { return now }), WithRand(rand.New(rand.NewSource(7))))
	r2, err := vm2.Execute(context.Background(), p, data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(r1.Data) != len(r2.Data) {
		t.Fatalf("expected identical sample sizes for identical seeds, got %d vs %d", len(r1.Data), len(r2.Data))
	}
}

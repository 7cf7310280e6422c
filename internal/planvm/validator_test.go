/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"testing"
	"time"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
)

func testPlanVMCfg() config.PlanVMOptions {
	return config.PlanVMOptions{
		MaxSteps:          32,
		MaxStepDuration:   5 * time.Second,
		MaxPlanDuration:   30 * time.Second,
		AllowedOperators:  []string{"SELECT", "FILTER", "PROJECT", "PACK_CAPSULE"},
		MaxCPUMillis:      60_000,
		MaxMemoryBytes:    100 << 20,
		MaxWallMillis:     120_000,
		MaxBatteryPercent: 10,
	}
}

func validPlan(now time.Time) *Plan {
	return &Plan{
		ID:            "plan-1",
		ContractID:    "contract-1",
		AllowedFields: []string{"hr", "steps"},
		Steps: []Step{
			{Index: 0, Operator: OpSelect, Parameters: map[string]any{"criteria": "*"}},
			{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 60.0}},
		},
		Output:    OutputConfig{Mode: "AGGREGATE_ONLY"},
		Limits:    ResourceLimits{CPUMillis: 1000, MemoryBytes: 1 << 20, WallMillis: 1000, BatteryPercent: 1},
		Signature: "a-non-empty-signature",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestValidateAcceptsValidPlan(t *testing.T) {
	now := time.Now()
	if err := Validate(validPlan(now), testPlanVMCfg(), now); err != nil {
		t.Fatalf("expected valid plan to pass validation: %v", err)
	}
}

func TestValidateRejectsUnsignedPlan(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Signature = ""
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindInvalidSignature {
		t.Fatalf("expected KindInvalidSignature, got %v", err)
	}
}

func TestValidateRejectsExpiredPlan(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.ExpiresAt = now.Add(-time.Minute)
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindExpired {
		t.Fatalf("expected KindExpired, got %v", err)
	}
}

func TestValidateRejectsDisallowedOperator(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: "DROP_TABLE"},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 60.0}},
	}
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindDisallowedOperator {
		t.Fatalf("expected KindDisallowedOperator, got %v", err)
	}
}

func TestValidateRejectsPackCapsuleNotLast(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 60.0}},
		{Index: 1, Operator: OpSelect},
	}
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindDisallowedOperator {
		t.Fatalf("expected KindDisallowedOperator for misplaced PACK_CAPSULE, got %v", err)
	}
}

func TestValidateRejectsLastStepNotPackCapsule(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: OpSelect},
	}
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindDisallowedOperator {
		t.Fatalf("expected KindDisallowedOperator when last step isn't PACK_CAPSULE, got %v", err)
	}
}

func TestValidateRejectsFieldOutsideAllowedSet(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Steps = []Step{
		{Index: 0, Operator: OpProject, OutputFields: []string{"ssn"}},
		{Index: 1, Operator: OpPackCapsule, Parameters: map[string]any{"ttl_seconds": 60.0}},
	}
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized for disallowed field, got %v", err)
	}
}

func TestValidateRejectsLimitsExceedingMaxima(t *testing.T) {
	now := time.Now()
	p := validPlan(now)
	p.Limits.CPUMillis = 1_000_000
	err := Validate(p, testPlanVMCfg(), now)
	if errs.KindOf(err) != errs.KindResourceLimit {
		t.Fatalf("expected KindResourceLimit, got %v", err)
	}
}

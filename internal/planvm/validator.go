/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"fmt"
	"time"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
)

// Validate checks a plan against §4.10's validation rules before any step
// is executed: it must be signed and unexpired, every step's operator
// must be allowlisted, the last (and only the last) step must be
// PACK_CAPSULE, every step's input/output fields must be subsets of the
// plan's allowed-fields set, the plan must not chain more steps than the
// configured MaxSteps, and the plan's declared resource limits must not
// exceed the configured maxima.
func Validate(plan *Plan, cfg config.PlanVMOptions, now time.Time) error {
	if plan.Signature == "" {
		return errs.New(errs.KindInvalidSignature, "Plan is not signed")
	}
	if now.After(plan.ExpiresAt) {
		return errs.New(errs.KindExpired, "Plan has expired")
	}
	if len(plan.Steps) == 0 {
		return errs.New(errs.KindDisallowedOperator, "PACK_CAPSULE must be the final step")
	}
	if cfg.MaxSteps > 0 && len(plan.Steps) > cfg.MaxSteps {
		return errs.New(errs.KindResourceLimit, "Plan exceeds the maximum step count")
	}

	allowed := make(map[Operator]bool, len(cfg.AllowedOperators))
	for _, op := range cfg.AllowedOperators {
		allowed[Operator(op)] = true
	}

	allowedFields := make(map[string]bool, len(plan.AllowedFields))
	for _, f := range plan.AllowedFields {
		allowedFields[f] = true
	}

	for i, step := range plan.Steps {
		if !allowed[step.Operator] {
			return errs.New(errs.KindDisallowedOperator, fmt.Sprintf("Disallowed operator: %s", step.Operator))
		}

		isLast := i == len(plan.Steps)-1
		if step.Operator == OpPackCapsule && !isLast {
			return errs.New(errs.KindDisallowedOperator, "PACK_CAPSULE must be the final step")
		}
		if isLast && step.Operator != OpPackCapsule {
			return errs.New(errs.KindDisallowedOperator, "PACK_CAPSULE must be the final step")
		}

		for _, f := range step.InputFields {
			if f != "*" && !allowedFields[f] {
				return errs.New(errs.KindUnauthorized, fmt.Sprintf("Field %s not in allowed set", f))
			}
		}
		for _, f := range step.OutputFields {
			if f != "*" && !allowedFields[f] {
				return errs.New(errs.KindUnauthorized, fmt.Sprintf("Field %s not in allowed set", f))
			}
		}
	}

	if err := validateLimits(plan.Limits, cfg); err != nil {
		return err
	}
	if err := validateOutput(plan.Output); err != nil {
		return err
	}

	return nil
}

func validateLimits(limits ResourceLimits, cfg config.PlanVMOptions) error {
	switch {
	case cfg.MaxCPUMillis > 0 && limits.CPUMillis > cfg.MaxCPUMillis,
		cfg.MaxMemoryBytes > 0 && limits.MemoryBytes > cfg.MaxMemoryBytes,
		cfg.MaxWallMillis > 0 && limits.WallMillis > cfg.MaxWallMillis,
		cfg.MaxBatteryPercent > 0 && limits.BatteryPercent > cfg.MaxBatteryPercent:
		return errs.New(errs.KindResourceLimit, "Resource limits exceed maxima")
	default:
		return nil
	}
}

func validateOutput(out OutputConfig) error {
	if out.MaxItems < 0 || out.MaxBytes < 0 {
		return errs.New(errs.KindResourceLimit, "Output config exceeds limits")
	}
	return nil
}

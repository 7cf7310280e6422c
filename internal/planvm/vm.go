/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"context"
	"fmt"
	mrand "math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/tracing"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// VM validates and executes Query Plans. Plan execution runs on the
// calling goroutine, strictly single-threaded per plan, with no intra-plan
// parallelism observable externally (§5).
type VM struct {
	cfg     config.PlanVMOptions
	metrics *metrics.PlanVMMetrics
	tracer  *tracing.Provider
	rand    *mrand.Rand
	now     func() time.Time
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithMetrics wires a PlanVMMetrics instance into the VM.
func WithMetrics(m *metrics.PlanVMMetrics) Option {
	return func(v *VM) { v.metrics = m }
}

// WithTracer wires an OpenTelemetry tracing Provider into the VM.
func WithTracer(t *tracing.Provider) Option {
	return func(v *VM) { v.tracer = t }
}

// WithRand overrides the VM's source of randomness, for deterministic
// SAMPLE tests.
func WithRand(rng *mrand.Rand) Option {
	return func(v *VM) { v.rand = rng }
}

// WithClock overrides the VM's notion of the current time, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *VM) { v.now = now }
}

// New constructs a VM bound to cfg's resource maxima and operator
// allowlist.
func New(cfg config.PlanVMOptions, opts ...Option) *VM {
	v := &VM{
		cfg:  cfg,
		rand: mrand.New(mrand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Execute validates plan and, if valid, runs its steps in index order
// over data. It returns the PACK_CAPSULE step's wrapped output.
//
// CPU, memory, and battery limits are validated against the configured
// maxima up front (§4.9); this VM has no portable way to sample a
// goroutine's actual CPU time, resident memory, or host battery draw from
// within the Go runtime without platform-specific instrumentation outside
// this repo's dependency surface, so wall-clock time — enforced here via
// a context deadline per step and for the plan as a whole — stands in as
// the real-time resource monitor. A future host-specific profiler can
// satisfy the remaining limits without changing this VM's interface.
func (v *VM) Execute(ctx context.Context, plan *Plan, data Dataset) (*PackedResult, error) {
	if err := Validate(plan, v.cfg, v.now()); err != nil {
		if v.metrics != nil {
			v.metrics.RecordValidationRejection(string(errs.KindOf(err)))
		}
		return nil, err
	}

	ctx = WithNetworkBlocked(ctx)

	planStart := v.now()
	if v.cfg.MaxPlanDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.MaxPlanDuration)
		defer cancel()
	}

	if v.tracer != nil {
		var planSpan trace.Span
		ctx, planSpan = v.tracer.StartPlanSpan(ctx, plan.ID, plan.ContractID)
		tracing.AddOutputMode(planSpan, string(plan.Output.Mode))
		defer planSpan.End()
	}

	data = data.Clone()

	for i, step := range plan.Steps {
		isLast := i == len(plan.Steps)-1

		if deadlineExceeded(ctx) {
			return v.fail(planStart, errs.New(errs.KindResourceLimit, "Resource limits exceed maxima"))
		}

		if step.Operator == OpExport && !plan.Output.ExportAllowed {
			return v.fail(planStart, &StepFailure{
				StepIndex: step.Index,
				Operator:  step.Operator,
				Message:   "EXPORT forbidden by contract output mode",
			})
		}

		if isLast && step.Operator == OpPackCapsule {
			result, err := v.runPackCapsule(step, data)
			if err != nil {
				return v.fail(planStart, err)
			}
			v.succeed(planStart)
			return result, nil
		}

		stepCtx := ctx
		var cancelStep context.CancelFunc
		if v.cfg.MaxStepDuration > 0 {
			stepCtx, cancelStep = context.WithTimeout(ctx, v.cfg.MaxStepDuration)
		}

		stepStart := v.now()
		next, err := v.runStep(stepCtx, step, data)
		if cancelStep != nil {
			cancelStep()
		}
		if v.metrics != nil {
			v.metrics.RecordStepDuration(string(step.Operator), v.now().Sub(stepStart))
		}
		if err != nil {
			return v.fail(planStart, err)
		}
		data = next
	}

	// Validate already rejects any plan whose last step isn't
	// PACK_CAPSULE, so this is unreachable in practice.
	return v.fail(planStart, errs.New(errs.KindDisallowedOperator, "PACK_CAPSULE must be the final step"))
}

// runStep executes one step's operator, converting any panic inside
// operator code into a structured StepFailure carrying the step index
// rather than letting it escape the VM (§4.10, §7).
func (v *VM) runStep(ctx context.Context, step Step, data Dataset) (result Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &StepFailure{StepIndex: step.Index, Operator: step.Operator, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if v.tracer != nil {
		var stepSpan trace.Span
		ctx, stepSpan = v.tracer.StartStepSpan(ctx, step.Index, string(step.Operator))
		defer stepSpan.End()
	}

	if deadlineExceeded(ctx) {
		return nil, errs.New(errs.KindResourceLimit, "Resource limits exceed maxima")
	}

	out, opErr := execOperator(step, data, v.rand)
	if opErr != nil {
		return nil, &StepFailure{StepIndex: step.Index, Operator: step.Operator, Message: "step failed", Err: opErr}
	}
	return out, nil
}

func (v *VM) runPackCapsule(step Step, data Dataset) (*PackedResult, error) {
	ttlSeconds, ok := toFloat64(step.Parameters["ttl_seconds"])
	if !ok || ttlSeconds < 1 {
		return nil, &StepFailure{StepIndex: step.Index, Operator: step.Operator, Message: "PACK_CAPSULE requires ttl_seconds >= 1"}
	}
	return &PackedResult{
		Data:     data,
		PackedAt: v.now(),
		TTL:      time.Duration(ttlSeconds * float64(time.Second)),
	}, nil
}

func (v *VM) fail(planStart time.Time, err error) (*PackedResult, error) {
	if v.metrics != nil {
		v.metrics.RecordPlanDuration(v.now().Sub(planStart))
		v.metrics.RecordPlanOutcome(outcomeFor(err))
	}
	return nil, err
}

func (v *VM) succeed(planStart time.Time) {
	if v.metrics != nil {
		v.metrics.RecordPlanDuration(v.now().Sub(planStart))
		v.metrics.RecordPlanOutcome("COMPLETED")
	}
}

func outcomeFor(err error) string {
	switch errs.KindOf(err) {
	case errs.KindResourceLimit:
		return "RESOURCE_LIMIT"
	case errs.KindDisallowedOperator:
		return "DISALLOWED_OPERATOR"
	default:
		return "STEP_ERROR"
	}
}

func deadlineExceeded(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

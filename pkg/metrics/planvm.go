/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PlanVMMetrics holds Prometheus metrics for the Plan Validator & VM.
type PlanVMMetrics struct {
	// PlansExecutedTotal counts completed plan executions by outcome
	// (COMPLETED, STEP_ERROR, RESOURCE_LIMIT, DISALLOWED_OPERATOR); a plan
	// or step that overruns its deadline is counted as RESOURCE_LIMIT.
	PlansExecutedTotal *prometheus.CounterVec
	// StepDurationSeconds tracks per-operator execution time.
	StepDurationSeconds *prometheus.HistogramVec
	// PlanDurationSeconds tracks whole-plan execution time.
	PlanDurationSeconds prometheus.Histogram
	// ValidationRejectionsTotal counts plans rejected before execution, by reason.
	ValidationRejectionsTotal *prometheus.CounterVec
}

// NewPlanVMMetrics creates and registers all Prometheus metrics for the plan VM.
func NewPlanVMMetrics() *PlanVMMetrics {
	return &PlanVMMetrics{
		PlansExecutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_planvm_plans_executed_total",
			Help: "Total number of plan executions, by outcome",
		}, []string{"outcome"}),
		StepDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodecore_planvm_step_duration_seconds",
			Help:    "Duration of a single plan step (operator call)",
			Buckets: prometheus.DefBuckets,
		}, []string{"operator"}),
		PlanDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nodecore_planvm_plan_duration_seconds",
			Help:    "Duration of an entire plan execution",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ValidationRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_planvm_validation_rejections_total",
			Help: "Total number of plans rejected at validation time, by reason",
		}, []string{"reason"}),
	}
}

// RecordPlanOutcome increments the plan outcome counter.
func (m *PlanVMMetrics) RecordPlanOutcome(outcome string) {
	m.PlansExecutedTotal.WithLabelValues(outcome).Inc()
}

// RecordStepDuration observes a step's duration for the given operator.
func (m *PlanVMMetrics) RecordStepDuration(operator string, d time.Duration) {
	m.StepDurationSeconds.WithLabelValues(operator).Observe(d.Seconds())
}

// RecordPlanDuration observes a whole plan's duration.
func (m *PlanVMMetrics) RecordPlanDuration(d time.Duration) {
	m.PlanDurationSeconds.Observe(d.Seconds())
}

// RecordValidationRejection increments the rejection counter for the given reason.
func (m *PlanVMMetrics) RecordValidationRejection(reason string) {
	m.ValidationRejectionsTotal.WithLabelValues(reason).Inc()
}

// NewPlanVMMetricsWithRegistry creates plan VM metrics with a custom registry.
func NewPlanVMMetricsWithRegistry(reg *prometheus.Registry) *PlanVMMetrics {
	plansExecuted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_planvm_plans_executed_total",
		Help: "Total number of plan executions, by outcome",
	}, []string{"outcome"})
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodecore_planvm_step_duration_seconds",
		Help:    "Duration of a single plan step (operator call)",
		Buckets: prometheus.DefBuckets,
	}, []string{"operator"})
	planDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodecore_planvm_plan_duration_seconds",
		Help:    "Duration of an entire plan execution",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	validationRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_planvm_validation_rejections_total",
		Help: "Total number of plans rejected at validation time, by reason",
	}, []string{"reason"})

	reg.MustRegister(plansExecuted, stepDuration, planDuration, validationRejections)

	return &PlanVMMetrics{
		PlansExecutedTotal:        plansExecuted,
		StepDurationSeconds:       stepDuration,
		PlanDurationSeconds:       planDuration,
		ValidationRejectionsTotal: validationRejections,
	}
}

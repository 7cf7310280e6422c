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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SensitivityMetrics holds Prometheus metrics for the Sensitivity Gate.
type SensitivityMetrics struct {
	// AssessmentsTotal counts assessments by resulting risk level.
	AssessmentsTotal *prometheus.CounterVec
	// ProtectionsForcedTotal counts how often each protection was forced.
	ProtectionsForcedTotal *prometheus.CounterVec
}

// NewSensitivityMetrics creates and registers all Prometheus metrics for
// the sensitivity gate.
func NewSensitivityMetrics() *SensitivityMetrics {
	return &SensitivityMetrics{
		AssessmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_sensitivity_assessments_total",
			Help: "Total number of sensitivity assessments, by resulting risk level",
		}, []string{"risk_level"}),
		ProtectionsForcedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_sensitivity_protections_forced_total",
			Help: "Total number of times each protection was forced onto an assessment",
		}, []string{"protection"}),
	}
}

// NewSensitivityMetricsWithRegistry creates sensitivity metrics with a custom registry.
func NewSensitivityMetricsWithRegistry(reg *prometheus.Registry) *SensitivityMetrics {
	assessments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_sensitivity_assessments_total",
		Help: "Total number of sensitivity assessments, by resulting risk level",
	}, []string{"risk_level"})
	forced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_sensitivity_protections_forced_total",
		Help: "Total number of times each protection was forced onto an assessment",
	}, []string{"protection"})

	reg.MustRegister(assessments, forced)

	return &SensitivityMetrics{
		AssessmentsTotal:       assessments,
		ProtectionsForcedTotal: forced,
	}
}

// RecordAssessment increments the assessment counter for the given risk level.
func (m *SensitivityMetrics) RecordAssessment(riskLevel string) {
	m.AssessmentsTotal.WithLabelValues(riskLevel).Inc()
}

// RecordProtectionForced increments the forced-protection counter.
func (m *SensitivityMetrics) RecordProtectionForced(protection string) {
	m.ProtectionsForcedTotal.WithLabelValues(protection).Inc()
}

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

// AuditMetrics holds Prometheus metrics for the hash-chained Audit Log.
type AuditMetrics struct {
	// EntriesAppendedTotal counts entries appended, by event type.
	EntriesAppendedTotal *prometheus.CounterVec
	// ChainLength tracks the current number of entries in the chain.
	ChainLength prometheus.Gauge
	// VerificationFailuresTotal counts hash-chain integrity check failures.
	VerificationFailuresTotal prometheus.Counter
}

// NewAuditMetrics creates and registers all Prometheus metrics for the audit log.
func NewAuditMetrics() *AuditMetrics {
	return &AuditMetrics{
		EntriesAppendedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_audit_entries_appended_total",
			Help: "Total number of audit log entries appended, by event type",
		}, []string{"event_type"}),
		ChainLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_audit_chain_length",
			Help: "Current number of entries in the hash chain",
		}),
		VerificationFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_audit_verification_failures_total",
			Help: "Total number of hash-chain integrity verification failures detected",
		}),
	}
}

// RecordAppend increments the append counter for the given event type.
func (m *AuditMetrics) RecordAppend(eventType string) {
	m.EntriesAppendedTotal.WithLabelValues(eventType).Inc()
}

// SetChainLength sets the current chain length gauge.
func (m *AuditMetrics) SetChainLength(n int64) {
	m.ChainLength.Set(float64(n))
}

// RecordVerificationFailure increments the verification-failure counter.
func (m *AuditMetrics) RecordVerificationFailure() {
	m.VerificationFailuresTotal.Inc()
}

// NewAuditMetricsWithRegistry creates audit metrics with a custom registry.
func NewAuditMetricsWithRegistry(reg *prometheus.Registry) *AuditMetrics {
	entriesAppended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_audit_entries_appended_total",
		Help: "Total number of audit log entries appended, by event type",
	}, []string{"event_type"})
	chainLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_audit_chain_length",
		Help: "Current number of entries in the hash chain",
	})
	verificationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_audit_verification_failures_total",
		Help: "Total number of hash-chain integrity verification failures detected",
	})

	reg.MustRegister(entriesAppended, chainLength, verificationFailures)

	return &AuditMetrics{
		EntriesAppendedTotal:      entriesAppended,
		ChainLength:               chainLength,
		VerificationFailuresTotal: verificationFailures,
	}
}

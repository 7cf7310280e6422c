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

// ContractMetrics holds Prometheus metrics for the Consent Contract Engine.
type ContractMetrics struct {
	// DraftsBuiltTotal counts drafts produced by Build.
	DraftsBuiltTotal prometheus.Counter
	// SignaturesTotal counts signature-state transitions, by resulting status.
	SignaturesTotal *prometheus.CounterVec
	// VerificationFailuresTotal counts Verify failures, by error kind.
	VerificationFailuresTotal *prometheus.CounterVec
}

// NewContractMetrics creates and registers all Prometheus metrics for the
// contract engine.
func NewContractMetrics() *ContractMetrics {
	return &ContractMetrics{
		DraftsBuiltTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_contract_drafts_built_total",
			Help: "Total number of contract drafts built",
		}),
		SignaturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_contract_signatures_total",
			Help: "Total number of signature transitions, by resulting status",
		}, []string{"status"}),
		VerificationFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_contract_verification_failures_total",
			Help: "Total number of contract verification failures, by reason",
		}, []string{"reason"}),
	}
}

// NewContractMetricsWithRegistry creates contract metrics with a custom registry.
func NewContractMetricsWithRegistry(reg *prometheus.Registry) *ContractMetrics {
	built := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_contract_drafts_built_total",
		Help: "Total number of contract drafts built",
	})
	signatures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_contract_signatures_total",
		Help: "Total number of signature transitions, by resulting status",
	}, []string{"status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_contract_verification_failures_total",
		Help: "Total number of contract verification failures, by reason",
	}, []string{"reason"})

	reg.MustRegister(built, signatures, failures)

	return &ContractMetrics{
		DraftsBuiltTotal:          built,
		SignaturesTotal:           signatures,
		VerificationFailuresTotal: failures,
	}
}

// RecordDraftBuilt increments the drafts-built counter.
func (m *ContractMetrics) RecordDraftBuilt() {
	m.DraftsBuiltTotal.Inc()
}

// RecordSignature increments the signature-transition counter for status.
func (m *ContractMetrics) RecordSignature(status string) {
	m.SignaturesTotal.WithLabelValues(status).Inc()
}

// RecordVerificationFailure increments the verification-failure counter for reason.
func (m *ContractMetrics) RecordVerificationFailure(reason string) {
	m.VerificationFailuresTotal.WithLabelValues(reason).Inc()
}

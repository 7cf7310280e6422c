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

// EgressMetrics holds Prometheus metrics for the Egress Gate.
type EgressMetrics struct {
	// BytesClassifiedTotal counts bytes egressed, by classification
	// (METADATA_ONLY, CIPHERTEXT_CAPSULE, RAW_PAYLOAD).
	BytesClassifiedTotal *prometheus.CounterVec
	// BlockedTotal counts blocked egress attempts, by reason.
	BlockedTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewEgressMetrics creates and registers all Prometheus metrics for the egress gate.
func NewEgressMetrics() *EgressMetrics {
	return &EgressMetrics{
		BytesClassifiedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_egress_bytes_classified_total",
			Help: "Total bytes passed through the egress gate, by classification",
		}, []string{"classification"}),
		BlockedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_egress_blocked_total",
			Help: "Total egress attempts blocked, by reason",
		}, []string{"reason"}),
		RateLimitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_egress_rate_limited_total",
			Help: "Total egress attempts rejected by the rate limiter",
		}),
	}
}

// RecordBytes adds n to the classified-bytes counter for the given classification.
func (m *EgressMetrics) RecordBytes(classification string, n int) {
	m.BytesClassifiedTotal.WithLabelValues(classification).Add(float64(n))
}

// RecordBlocked increments the blocked counter for the given reason.
func (m *EgressMetrics) RecordBlocked(reason string) {
	m.BlockedTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimited increments the rate-limited counter.
func (m *EgressMetrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// NewEgressMetricsWithRegistry creates egress metrics with a custom registry.
func NewEgressMetricsWithRegistry(reg *prometheus.Registry) *EgressMetrics {
	bytesClassified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_egress_bytes_classified_total",
		Help: "Total bytes passed through the egress gate, by classification",
	}, []string{"classification"})
	blocked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_egress_blocked_total",
		Help: "Total egress attempts blocked, by reason",
	}, []string{"reason"})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_egress_rate_limited_total",
		Help: "Total egress attempts rejected by the rate limiter",
	})

	reg.MustRegister(bytesClassified, blocked, rateLimited)

	return &EgressMetrics{
		BytesClassifiedTotal: bytesClassified,
		BlockedTotal:         blocked,
		RateLimitedTotal:     rateLimited,
	}
}

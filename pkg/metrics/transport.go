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

// TransportMetrics holds Prometheus metrics for Transport & Capsule.
type TransportMetrics struct {
	// SessionsTotal counts sessions reaching each terminal/notable state.
	SessionsTotal *prometheus.CounterVec
	// ChunksSentTotal counts chunks sent per transfer outcome (ok, failed).
	ChunksSentTotal *prometheus.CounterVec
	// TransfersInterruptedTotal counts transfers marked INTERRUPTED.
	TransfersInterruptedTotal prometheus.Counter
	// CapsulesShreddedTotal counts capsules crypto-shredded on TTL expiry.
	CapsulesShreddedTotal prometheus.Counter
	// BreakerStateChangesTotal counts circuit breaker state transitions.
	BreakerStateChangesTotal *prometheus.CounterVec
}

// NewTransportMetrics creates and registers all Prometheus metrics for transport.
func NewTransportMetrics() *TransportMetrics {
	return &TransportMetrics{
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_transport_sessions_total",
			Help: "Total sessions reaching a given state",
		}, []string{"state"}),
		ChunksSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_transport_chunks_sent_total",
			Help: "Total chunks sent, by outcome",
		}, []string{"outcome"}),
		TransfersInterruptedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_transport_transfers_interrupted_total",
			Help: "Total transfers marked INTERRUPTED",
		}),
		CapsulesShreddedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_transport_capsules_shredded_total",
			Help: "Total capsules crypto-shredded on TTL expiry",
		}),
		BreakerStateChangesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_transport_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions, by new state",
		}, []string{"state"}),
	}
}

// RecordSessionState increments the session-state counter.
func (m *TransportMetrics) RecordSessionState(state string) {
	m.SessionsTotal.WithLabelValues(state).Inc()
}

// RecordChunkSent increments the chunk-sent counter for the given outcome.
func (m *TransportMetrics) RecordChunkSent(outcome string) {
	m.ChunksSentTotal.WithLabelValues(outcome).Inc()
}

// RecordTransferInterrupted increments the interrupted-transfer counter.
func (m *TransportMetrics) RecordTransferInterrupted() {
	m.TransfersInterruptedTotal.Inc()
}

// RecordCapsuleShredded increments the crypto-shred counter.
func (m *TransportMetrics) RecordCapsuleShredded() {
	m.CapsulesShreddedTotal.Inc()
}

// RecordBreakerStateChange increments the breaker state-change counter.
func (m *TransportMetrics) RecordBreakerStateChange(state string) {
	m.BreakerStateChangesTotal.WithLabelValues(state).Inc()
}

// NewTransportMetricsWithRegistry creates transport metrics with a custom registry.
func NewTransportMetricsWithRegistry(reg *prometheus.Registry) *TransportMetrics {
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_transport_sessions_total",
		Help: "Total sessions reaching a given state",
	}, []string{"state"})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_transport_chunks_sent_total",
		Help: "Total chunks sent, by outcome",
	}, []string{"outcome"})
	interrupted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_transport_transfers_interrupted_total",
		Help: "Total transfers marked INTERRUPTED",
	})
	shredded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_transport_capsules_shredded_total",
		Help: "Total capsules crypto-shredded on TTL expiry",
	})
	breaker := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_transport_breaker_state_changes_total",
		Help: "Total circuit breaker state transitions, by new state",
	}, []string{"state"})

	reg.MustRegister(sessions, chunks, interrupted, shredded, breaker)

	return &TransportMetrics{
		SessionsTotal:             sessions,
		ChunksSentTotal:           chunks,
		TransfersInterruptedTotal: interrupted,
		CapsulesShreddedTotal:     shredded,
		BreakerStateChangesTotal:  breaker,
	}
}

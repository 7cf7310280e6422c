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

// InboxMetrics holds Prometheus metrics for the Request Inbox.
type InboxMetrics struct {
	// RequestsReceivedTotal counts requests by outcome (ACCEPTED, EXPIRED,
	// REPLAY_DETECTED, INVALID_SIGNATURE, MISSING_POLICY_STAMP,
	// INVALID_POLICY_STAMP, INBOX_FULL).
	RequestsReceivedTotal *prometheus.CounterVec
	// QueueDepth tracks the current number of pending requests.
	QueueDepth prometheus.Gauge
	// SeenNonceSetSize tracks the cardinality of the replay-detection set.
	SeenNonceSetSize prometheus.Gauge
}

// NewInboxMetrics creates and registers all Prometheus metrics for the inbox.
func NewInboxMetrics() *InboxMetrics {
	return &InboxMetrics{
		RequestsReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_inbox_requests_received_total",
			Help: "Total number of data requests received by the inbox, by outcome",
		}, []string{"outcome"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_inbox_queue_depth",
			Help: "Current number of pending requests held in the inbox",
		}),
		SeenNonceSetSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_inbox_seen_nonce_set_size",
			Help: "Current cardinality of the replay-detection seen-request-id set",
		}),
	}
}

// RecordOutcome increments the received counter for the given outcome.
func (m *InboxMetrics) RecordOutcome(outcome string) {
	m.RequestsReceivedTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the current queue depth gauge.
func (m *InboxMetrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// SetSeenNonceSetSize sets the current seen-nonce set size gauge.
func (m *InboxMetrics) SetSeenNonceSetSize(n int) {
	m.SeenNonceSetSize.Set(float64(n))
}

// NewInboxMetricsWithRegistry creates inbox metrics with a custom registry.
// Use this instead of NewInboxMetrics when you need an isolated registry
// (e.g. for testing or multiple node instances in one process).
func NewInboxMetricsWithRegistry(reg *prometheus.Registry) *InboxMetrics {
	requestsReceived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_inbox_requests_received_total",
		Help: "Total number of data requests received by the inbox, by outcome",
	}, []string{"outcome"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_inbox_queue_depth",
		Help: "Current number of pending requests held in the inbox",
	})
	seenNonceSetSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_inbox_seen_nonce_set_size",
		Help: "Current cardinality of the replay-detection seen-request-id set",
	})

	reg.MustRegister(requestsReceived, queueDepth, seenNonceSetSize)

	return &InboxMetrics{
		RequestsReceivedTotal: requestsReceived,
		QueueDepth:            queueDepth,
		SeenNonceSetSize:      seenNonceSetSize,
	}
}

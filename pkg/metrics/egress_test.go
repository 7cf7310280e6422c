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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewEgressMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEgressMetricsWithRegistry(reg)
	if m == nil {
		t.Fatal("NewEgressMetricsWithRegistry returned nil")
	}

	m.RecordBytes("METADATA", 128)
	m.RecordBlocked("RAW_PAYLOAD_EGRESS")
	m.RecordRateLimited()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(metricFamilies) != 3 {
		t.Errorf("expected 3 metric families, got %d", len(metricFamilies))
	}
}

func TestNewEgressMetricsPromauto(t *testing.T) {
	m := NewEgressMetrics()
	if m.BytesClassifiedTotal == nil || m.BlockedTotal == nil || m.RateLimitedTotal == nil {
		t.Fatal("expected all egress metric fields populated")
	}
}

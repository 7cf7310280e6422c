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

// ODXMetrics holds Prometheus metrics for the ODX Index.
type ODXMetrics struct {
	// EntriesMergedTotal counts successful entry merges into the index.
	EntriesMergedTotal prometheus.Counter
	// ConstructionRejectionsTotal counts ODX_SAFETY construction failures,
	// by the invariant that rejected them.
	ConstructionRejectionsTotal *prometheus.CounterVec
	// IndexSize tracks the current number of distinct entries held.
	IndexSize prometheus.Gauge
	// BelowFloorTotal counts entries currently held back from export
	// because their count has not yet reached the privacy floor.
	BelowFloorTotal prometheus.Gauge
}

// NewODXMetrics creates and registers all Prometheus metrics for the ODX index.
func NewODXMetrics() *ODXMetrics {
	return &ODXMetrics{
		EntriesMergedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nodecore_odx_entries_merged_total",
			Help: "Total number of entries merged into the ODX index",
		}),
		ConstructionRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_odx_construction_rejections_total",
			Help: "Total number of ODX entry construction rejections, by invariant",
		}, []string{"reason"}),
		IndexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_odx_index_size",
			Help: "Current number of distinct entries held in the ODX index",
		}),
		BelowFloorTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_odx_below_floor",
			Help: "Current number of entries held back from export below their privacy floor",
		}),
	}
}

// NewODXMetricsWithRegistry creates ODX index metrics with a custom registry.
func NewODXMetricsWithRegistry(reg *prometheus.Registry) *ODXMetrics {
	entriesMerged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodecore_odx_entries_merged_total",
		Help: "Total number of entries merged into the ODX index",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_odx_construction_rejections_total",
		Help: "Total number of ODX entry construction rejections, by invariant",
	}, []string{"reason"})
	indexSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_odx_index_size",
		Help: "Current number of distinct entries held in the ODX index",
	})
	belowFloor := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_odx_below_floor",
		Help: "Current number of entries held back from export below their privacy floor",
	})

	reg.MustRegister(entriesMerged, rejections, indexSize, belowFloor)

	return &ODXMetrics{
		EntriesMergedTotal:          entriesMerged,
		ConstructionRejectionsTotal: rejections,
		IndexSize:                   indexSize,
		BelowFloorTotal:             belowFloor,
	}
}

// RecordMerge increments the entries-merged counter.
func (m *ODXMetrics) RecordMerge() {
	m.EntriesMergedTotal.Inc()
}

// RecordRejection increments the construction-rejection counter for a reason.
func (m *ODXMetrics) RecordRejection(reason string) {
	m.ConstructionRejectionsTotal.WithLabelValues(reason).Inc()
}

// SetIndexSize sets the index-size gauge.
func (m *ODXMetrics) SetIndexSize(n int) {
	m.IndexSize.Set(float64(n))
}

// SetBelowFloor sets the below-floor gauge.
func (m *ODXMetrics) SetBelowFloor(n int) {
	m.BelowFloorTotal.Set(float64(n))
}

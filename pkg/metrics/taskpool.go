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

// TaskPoolMetrics holds Prometheus metrics for the background task pool.
type TaskPoolMetrics struct {
	// TasksTotal counts completed tasks, by kind and outcome (ok/failed/retried).
	TasksTotal *prometheus.CounterVec
	// QueueDepth tracks the number of tasks currently pending or running.
	QueueDepth prometheus.Gauge
	// TaskDuration tracks task run time, by kind.
	TaskDuration *prometheus.HistogramVec
}

// NewTaskPoolMetrics creates and registers all Prometheus metrics for the task pool.
func NewTaskPoolMetrics() *TaskPoolMetrics {
	return &TaskPoolMetrics{
		TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nodecore_taskpool_tasks_total",
			Help: "Total tasks processed by the background task pool, by kind and outcome",
		}, []string{"kind", "outcome"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nodecore_taskpool_queue_depth",
			Help: "Current number of pending or running tasks",
		}),
		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodecore_taskpool_task_duration_seconds",
			Help:    "Task run duration in seconds, by kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// RecordTask increments the task counter for kind/outcome and observes duration.
func (m *TaskPoolMetrics) RecordTask(kind, outcome string, durationSeconds float64) {
	m.TasksTotal.WithLabelValues(kind, outcome).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// SetQueueDepth sets the current pending-plus-running task count.
func (m *TaskPoolMetrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// NewTaskPoolMetricsWithRegistry creates task pool metrics with a custom registry.
func NewTaskPoolMetricsWithRegistry(reg *prometheus.Registry) *TaskPoolMetrics {
	tasksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodecore_taskpool_tasks_total",
		Help: "Total tasks processed by the background task pool, by kind and outcome",
	}, []string{"kind", "outcome"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodecore_taskpool_queue_depth",
		Help: "Current number of pending or running tasks",
	})
	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodecore_taskpool_task_duration_seconds",
		Help:    "Task run duration in seconds, by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	reg.MustRegister(tasksTotal, queueDepth, taskDuration)

	return &TaskPoolMetrics{
		TasksTotal:   tasksTotal,
		QueueDepth:   queueDepth,
		TaskDuration: taskDuration,
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package taskpool implements a small bounded background worker pool that
// drives connector sync and ODX rebuild jobs (§5) off the request-serving
// path.
package taskpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/pkg/metrics"
)

// Task is one unit of background work.
type Task struct {
	ID          string
	Kind        string
	Attempt     int
	MaxAttempts int
	Run         func(ctx context.Context) error
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics records task outcomes and queue depth to m.
func WithMetrics(m *metrics.TaskPoolMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithClock overrides the pool's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// Pool runs submitted Tasks across a fixed number of worker goroutines,
// retrying a failed task up to its MaxAttempts before giving up on it,
// grounded on the producer/consumer and retry-on-Nack shape of the
// teacher's arena work queue, simplified to a single in-process queue
// since a phone-as-node has no multi-worker distribution concern.
type Pool struct {
	workers int
	tasks   chan *Task

	mu      sync.Mutex
	depth   int
	closed  bool
	metrics *metrics.TaskPoolMetrics
	now     func() time.Time

	wg sync.WaitGroup
}

// NewPool builds a Pool with the given worker count and queue capacity.
func NewPool(workers, capacity int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 64
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan *Task, capacity),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start spawns the pool's worker goroutines. Workers exit once Stop has
// closed the task channel and it has been drained; ctx is passed to each
// task's Run and does not stop the workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
}

// Stop closes the task channel and waits for in-flight tasks to finish.
// Submit must not be called after Stop.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	close(p.tasks)
	p.wg.Wait()
}

// Submit enqueues kind-labeled work. MaxAttempts bounds how many times in
// all a failing run is attempted before being recorded as a permanent
// failure; a MaxAttempts of 0 is treated as 1 (no retry).
func (p *Pool) Submit(kind string, maxAttempts int, run func(ctx context.Context) error) string {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	t := &Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		MaxAttempts: maxAttempts,
		Run:         run,
	}
	p.enqueue(t)
	return t.ID
}

func (p *Pool) enqueue(t *Task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.depth++
	if p.metrics != nil {
		p.metrics.SetQueueDepth(p.depth)
	}
	p.mu.Unlock()

	p.tasks <- t
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.runTask(ctx, t)
	}
}

func (p *Pool) runTask(ctx context.Context, t *Task) {
	start := p.now()
	t.Attempt++

	err := t.Run(ctx)

	p.mu.Lock()
	p.depth--
	if p.metrics != nil {
		p.metrics.SetQueueDepth(p.depth)
	}
	p.mu.Unlock()

	duration := p.now().Sub(start).Seconds()

	if err == nil {
		if p.metrics != nil {
			p.metrics.RecordTask(t.Kind, "ok", duration)
		}
		return
	}

	if t.Attempt < t.MaxAttempts {
		if p.metrics != nil {
			p.metrics.RecordTask(t.Kind, "retried", duration)
		}
		p.enqueue(t)
		return
	}

	if p.metrics != nil {
		p.metrics.RecordTask(t.Kind, "failed", duration)
	}
}

// Depth reports the current count of pending-or-running tasks, for tests
// and diagnostics.
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth
}

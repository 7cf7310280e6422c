/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker/v2"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// SendFunc delivers one chunk to a destination over the ciphertext-only
// relay path.
type SendFunc func(ctx context.Context, destination string, chunk []byte) error

// Relay wraps a SendFunc in a circuit breaker so repeated relay failures
// open the breaker instead of retrying into a dead relay (§5: transient
// kinds are retried at the boundary; the breaker bounds how long that
// boundary keeps trying).
type Relay struct {
	breaker *gobreaker.CircuitBreaker[struct{}]
	send    SendFunc
	metrics *metrics.TransportMetrics
}

// NewRelay builds a Relay around send, configured from cfg.
func NewRelay(cfg config.TransportOptions, send SendFunc, m *metrics.TransportMetrics) *Relay {
	r := &Relay{send: send, metrics: m}
	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "egress-relay",
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.metrics != nil {
				r.metrics.RecordBreakerStateChange(to.String())
			}
		},
	})
	return r
}

// Send delivers chunk to destination through the breaker, converting an
// open-breaker rejection into a transient SERVICE_UNAVAILABLE error.
func (r *Relay) Send(ctx context.Context, destination string, chunk []byte) error {
	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.send(ctx, destination, chunk)
	})
	if err == nil {
		if r.metrics != nil {
			r.metrics.RecordChunkSent("ok")
		}
		return nil
	}
	if r.metrics != nil {
		r.metrics.RecordChunkSent("failed")
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errs.Wrap(errs.KindServiceUnavailable, fmt.Sprintf("relay to %s is circuit-broken", destination), err)
	}
	return errs.Wrap(errs.KindConnectionError, fmt.Sprintf("relay send to %s failed", destination), err)
}

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

// Package tracing provides OpenTelemetry tracing for the plan validator and
// VM: one span per plan execution, one child span per step, so a slow or
// failed operator is visible without instrumenting every operator by hand.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer used for plan VM spans.
	TracerName = "nodecore-planvm"
)

// Plan VM attribute keys.
const (
	AttrPlanID         = "plan.id"
	AttrContractID     = "plan.contract_id"
	AttrStepIndex      = "plan.step.index"
	AttrOperatorName   = "plan.step.operator"
	AttrOperatorCostMs = "plan.step.cost_ms"
	AttrOutputMode     = "plan.output_mode"
)

// Config holds tracing configuration.
type Config struct {
	// Enabled enables tracing.
	Enabled bool

	// ServiceName is the service name for traces.
	ServiceName string

	// ServiceVersion is the service version.
	ServiceVersion string

	// Environment is the deployment environment (e.g., "production", "staging").
	Environment string

	// SampleRate is the sampling rate (0.0 to 1.0). Default 1.0 (all traces).
	SampleRate float64

	// Exporter, when set, receives finished spans. Nil is a valid, fully
	// functional no-export configuration: a node running fully offline
	// still gets in-process spans for local debugging, it just has
	// nowhere to ship them.
	Exporter sdktrace.SpanExporter
}

// Provider wraps the OpenTelemetry TracerProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider creates a new tracing provider with the given configuration.
func NewProvider(_ context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: otel.Tracer(TracerName)}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "nodecore"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if cfg.Exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(TracerName)}, nil
}

// NewTestProvider creates a Provider from a pre-configured TracerProvider.
// This is intended for tests that supply an in-memory exporter.
func NewTestProvider(tp *sdktrace.TracerProvider) *Provider {
	return &Provider{tp: tp, tracer: tp.Tracer(TracerName)}
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// TracerProvider returns the underlying TracerProvider for SDK integration.
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p.tp != nil {
		return p.tp
	}
	return otel.GetTracerProvider()
}

// Shutdown shuts down the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// StartPlanSpan starts the root span for executing a validated plan.
func (p *Provider) StartPlanSpan(ctx context.Context, planID, contractID string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "planvm.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrPlanID, planID),
			attribute.String(AttrContractID, contractID),
		),
	)
	return ctx, span
}

// StartStepSpan starts a child span for a single plan step's operator call.
func (p *Provider) StartStepSpan(ctx context.Context, stepIndex int, operator string) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("planvm.step %s", operator)
	ctx, span := p.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(AttrStepIndex, stepIndex),
			attribute.String(AttrOperatorName, operator),
		),
	)
	return ctx, span
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful.
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "success")
}

// AddStepCost records the wall-clock cost of a step on its span. Nothing
// compares the recorded value against a resource cap.
func AddStepCost(span trace.Span, costMs int64) {
	span.SetAttributes(attribute.Int64(AttrOperatorCostMs, costMs))
}

// AddOutputMode records the request's output mode on the plan root span.
func AddOutputMode(span trace.Span, mode string) {
	span.SetAttributes(attribute.String(AttrOutputMode, mode))
}

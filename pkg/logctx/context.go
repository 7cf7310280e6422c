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

// Package logctx provides structured logging context management.
// It allows storing and extracting common logging fields from context.Context,
// enabling consistent logging across the inbox, contract engine, and plan VM.
package logctx

import (
	"context"

	"github.com/go-logr/logr"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyRequestID identifies the individual Data Request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyContractID identifies the consent contract under negotiation.
	ContextKeyContractID contextKey = "contract_id"

	// ContextKeyPlanID identifies the validated plan executing in the VM.
	ContextKeyPlanID contextKey = "plan_id"

	// ContextKeySessionID identifies the transport session between two nodes.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyRequesterID identifies the party that issued the request.
	ContextKeyRequesterID contextKey = "requester_id"

	// ContextKeyNodeID identifies the local node processing the operation.
	ContextKeyNodeID contextKey = "node_id"

	// ContextKeyStepIndex identifies the plan step currently executing.
	ContextKeyStepIndex contextKey = "step_index"

	// ContextKeyOperator identifies the plan VM operator currently executing.
	ContextKeyOperator contextKey = "operator"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyRequestID,
	ContextKeyContractID,
	ContextKeyPlanID,
	ContextKeySessionID,
	ContextKeyRequesterID,
	ContextKeyNodeID,
	ContextKeyStepIndex,
	ContextKeyOperator,
	ContextKeyCorrelationID,
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithContractID returns a new context with the contract ID set.
func WithContractID(ctx context.Context, contractID string) context.Context {
	return context.WithValue(ctx, ContextKeyContractID, contractID)
}

// WithPlanID returns a new context with the plan ID set.
func WithPlanID(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, ContextKeyPlanID, planID)
}

// WithSessionID returns a new context with the transport session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithRequesterID returns a new context with the requester ID set.
func WithRequesterID(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequesterID, requesterID)
}

// WithNodeID returns a new context with the local node ID set.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, ContextKeyNodeID, nodeID)
}

// WithStepIndex returns a new context with the current plan step index set.
func WithStepIndex(ctx context.Context, stepIndex int) context.Context {
	return context.WithValue(ctx, ContextKeyStepIndex, stepIndex)
}

// WithOperator returns a new context with the current operator name set.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, ContextKeyOperator, operator)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	RequestID     string
	ContractID    string
	PlanID        string
	SessionID     string
	RequesterID   string
	NodeID        string
	StepIndex     int
	Operator      string
	CorrelationID string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.ContractID != "" {
		ctx = WithContractID(ctx, fields.ContractID)
	}
	if fields.PlanID != "" {
		ctx = WithPlanID(ctx, fields.PlanID)
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.RequesterID != "" {
		ctx = WithRequesterID(ctx, fields.RequesterID)
	}
	if fields.NodeID != "" {
		ctx = WithNodeID(ctx, fields.NodeID)
	}
	if fields.StepIndex != 0 {
		ctx = WithStepIndex(ctx, fields.StepIndex)
	}
	if fields.Operator != "" {
		ctx = WithOperator(ctx, fields.Operator)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyContractID); v != nil {
		fields.ContractID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyPlanID); v != nil {
		fields.PlanID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeySessionID); v != nil {
		fields.SessionID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequesterID); v != nil {
		fields.RequesterID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyNodeID); v != nil {
		fields.NodeID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStepIndex); v != nil {
		fields.StepIndex, _ = v.(int)
	}
	if v := ctx.Value(ContextKeyOperator); v != nil {
		fields.Operator, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	return fields
}

// LogrValues extracts context values and returns them as key-value pairs
// suitable for use with logr.Logger.WithValues().
// Only non-empty values are included.
func LogrValues(ctx context.Context) []interface{} {
	var values []interface{}
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			switch val := v.(type) {
			case string:
				if val != "" {
					values = append(values, string(key), val)
				}
			case int:
				if val != 0 {
					values = append(values, string(key), val)
				}
			}
		}
	}
	return values
}

// LoggerWithContext returns a logger enriched with all context values.
// This is a convenience function for logr.Logger.
func LoggerWithContext(log logr.Logger, ctx context.Context) logr.Logger {
	values := LogrValues(ctx)
	if len(values) == 0 {
		return log
	}
	return log.WithValues(values...)
}

// RequestID extracts the request ID from the context.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ContractID extracts the contract ID from the context.
func ContractID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyContractID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequesterID extracts the requester ID from the context.
func RequesterID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequesterID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// NodeID extracts the local node ID from the context.
func NodeID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyNodeID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

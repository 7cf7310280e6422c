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

package logctx

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
)

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-456")

	if got := RequestID(ctx); got != "req-456" {
		t.Errorf("RequestID() = %q, want %q", got, "req-456")
	}
}

func TestWithContractID(t *testing.T) {
	ctx := context.Background()
	ctx = WithContractID(ctx, "contract-1")

	if got := ContractID(ctx); got != "contract-1" {
		t.Errorf("ContractID() = %q, want %q", got, "contract-1")
	}
}

func TestWithRequesterID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequesterID(ctx, "requester-1")

	if got := RequesterID(ctx); got != "requester-1" {
		t.Errorf("RequesterID() = %q, want %q", got, "requester-1")
	}
}

func TestWithNodeID(t *testing.T) {
	ctx := context.Background()
	ctx = WithNodeID(ctx, "node-1")

	if got := NodeID(ctx); got != "node-1" {
		t.Errorf("NodeID() = %q, want %q", got, "node-1")
	}
}

func TestWithCorrelationID(t *testing.T) {
	ctx := context.Background()
	ctx = WithCorrelationID(ctx, "corr-789")

	fields := ExtractLoggingFields(ctx)
	if fields.CorrelationID != "corr-789" {
		t.Errorf("CorrelationID = %q, want %q", fields.CorrelationID, "corr-789")
	}
}

func TestWithPlanID(t *testing.T) {
	ctx := context.Background()
	ctx = WithPlanID(ctx, "plan-1")

	fields := ExtractLoggingFields(ctx)
	if fields.PlanID != "plan-1" {
		t.Errorf("PlanID = %q, want %q", fields.PlanID, "plan-1")
	}
}

func TestWithSessionID(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "session-1")

	fields := ExtractLoggingFields(ctx)
	if fields.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", fields.SessionID, "session-1")
	}
}

func TestWithStepIndex(t *testing.T) {
	ctx := context.Background()
	ctx = WithStepIndex(ctx, 3)

	fields := ExtractLoggingFields(ctx)
	if fields.StepIndex != 3 {
		t.Errorf("StepIndex = %d, want %d", fields.StepIndex, 3)
	}
}

func TestWithOperator(t *testing.T) {
	ctx := context.Background()
	ctx = WithOperator(ctx, "filter")

	fields := ExtractLoggingFields(ctx)
	if fields.Operator != "filter" {
		t.Errorf("Operator = %q, want %q", fields.Operator, "filter")
	}
}

func TestWithLoggingContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithLoggingContext(ctx, &LoggingFields{
		RequestID:     "req-1",
		ContractID:    "contract-1",
		PlanID:        "plan-1",
		SessionID:     "session-1",
		RequesterID:   "requester-1",
		NodeID:        "node-1",
		StepIndex:     2,
		Operator:      "aggregate",
		CorrelationID: "corr-1",
	})

	fields := ExtractLoggingFields(ctx)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"RequestID", fields.RequestID, "req-1"},
		{"ContractID", fields.ContractID, "contract-1"},
		{"PlanID", fields.PlanID, "plan-1"},
		{"SessionID", fields.SessionID, "session-1"},
		{"RequesterID", fields.RequesterID, "requester-1"},
		{"NodeID", fields.NodeID, "node-1"},
		{"Operator", fields.Operator, "aggregate"},
		{"CorrelationID", fields.CorrelationID, "corr-1"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if fields.StepIndex != 2 {
		t.Errorf("StepIndex = %d, want %d", fields.StepIndex, 2)
	}
}

func TestWithLoggingContextNil(t *testing.T) {
	ctx := context.Background()
	result := WithLoggingContext(ctx, nil)

	if result != ctx {
		t.Error("WithLoggingContext(ctx, nil) should return the same context")
	}
}

func TestWithLoggingContextPartial(t *testing.T) {
	ctx := context.Background()
	ctx = WithLoggingContext(ctx, &LoggingFields{
		RequestID: "req-only",
	})

	fields := ExtractLoggingFields(ctx)

	if fields.RequestID != "req-only" {
		t.Errorf("RequestID = %q, want %q", fields.RequestID, "req-only")
	}
	if fields.NodeID != "" {
		t.Errorf("NodeID = %q, want empty", fields.NodeID)
	}
}

func TestExtractLoggingFieldsEmpty(t *testing.T) {
	ctx := context.Background()
	fields := ExtractLoggingFields(ctx)

	if fields.RequestID != "" {
		t.Errorf("RequestID = %q, want empty", fields.RequestID)
	}
	if fields.NodeID != "" {
		t.Errorf("NodeID = %q, want empty", fields.NodeID)
	}
}

func TestLogrValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithNodeID(ctx, "node-1")

	values := LogrValues(ctx)

	if len(values) != 4 {
		t.Errorf("len(LogrValues) = %d, want 4", len(values))
	}

	found := make(map[string]string)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			t.Errorf("key at index %d is not a string", i)
			continue
		}
		val, ok := values[i+1].(string)
		if !ok {
			t.Errorf("value at index %d is not a string", i+1)
			continue
		}
		found[key] = val
	}

	if found["request_id"] != "req-123" {
		t.Errorf("request_id = %q, want %q", found["request_id"], "req-123")
	}
	if found["node_id"] != "node-1" {
		t.Errorf("node_id = %q, want %q", found["node_id"], "node-1")
	}
}

func TestLogrValuesEmpty(t *testing.T) {
	ctx := context.Background()
	values := LogrValues(ctx)

	if len(values) != 0 {
		t.Errorf("len(LogrValues) = %d, want 0", len(values))
	}
}

func TestLogrValuesSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKeyRequestID, "")
	ctx = WithNodeID(ctx, "node-1")

	values := LogrValues(ctx)

	if len(values) != 2 {
		t.Errorf("len(LogrValues) = %d, want 2", len(values))
	}
}

func TestLoggerWithContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithNodeID(ctx, "node-1")

	log := logr.Discard()
	enriched := LoggerWithContext(log, ctx)

	enriched.Info("test message") // Should not panic
}

func TestLoggerWithContextEmpty(t *testing.T) {
	ctx := context.Background()
	log := logr.Discard()

	enriched := LoggerWithContext(log, ctx)

	enriched.Info("test message") // Should not panic
}

func TestGettersReturnEmptyOnWrongType(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKeyRequestID, 123)
	ctx = context.WithValue(ctx, ContextKeyNodeID, true)
	ctx = context.WithValue(ctx, ContextKeyContractID, []string{"test"})
	ctx = context.WithValue(ctx, ContextKeyRequesterID, struct{}{})

	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID() = %q, want empty for int value", got)
	}
	if got := NodeID(ctx); got != "" {
		t.Errorf("NodeID() = %q, want empty for bool value", got)
	}
	if got := ContractID(ctx); got != "" {
		t.Errorf("ContractID() = %q, want empty for slice value", got)
	}
	if got := RequesterID(ctx); got != "" {
		t.Errorf("RequesterID() = %q, want empty for struct value", got)
	}
}

func TestChainedContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithNodeID(ctx, "node-1")
	ctx = WithContractID(ctx, "contract-1")

	// Update request ID - should override
	ctx = WithRequestID(ctx, "req-2")

	if got := RequestID(ctx); got != "req-2" {
		t.Errorf("RequestID() = %q, want %q", got, "req-2")
	}
	// Other values should remain
	if got := NodeID(ctx); got != "node-1" {
		t.Errorf("NodeID() = %q, want %q", got, "node-1")
	}
	if got := ContractID(ctx); got != "contract-1" {
		t.Errorf("ContractID() = %q, want %q", got, "contract-1")
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package egress

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/planvm"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func testCfg() config.EgressOptions {
	return config.EgressOptions{
		RateLimitPerSecond:       0,
		RateLimitBurst:           0,
		MetadataEntropyThreshold: 7.0,
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestSendRejectsWhenGateDisabled(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Purpose: "sync", Active: true})
	g.SetEnabled(false)

	_, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"k":"v"}`)})
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected disabled gate to reject, got %v", err)
	}
}

func TestSendRejectsUnknownDestination(t *testing.T) {
	g := New(testCfg())

	_, err := g.Send(context.Background(), Request{Destination: "evil.example.com", Payload: []byte(`{"k":"v"}`)})
	if errs.KindOf(err) != errs.KindUnknownDestination {
		t.Fatalf("expected UNKNOWN_DESTINATION, got %v", err)
	}
}

func TestSendRejectsInactiveAllowlistEntry(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Purpose: "sync", Active: false})

	_, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"k":"v"}`)})
	if errs.KindOf(err) != errs.KindUnknownDestination {
		t.Fatalf("expected inactive entry to reject as UNKNOWN_DESTINATION, got %v", err)
	}
}

func TestSendNormalizesDestinationForAllowlistLookup(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Purpose: "sync", Active: true})

	result, err := g.Send(context.Background(), Request{
		Destination: "HTTPS://Relay.Example.com/v1/ingest",
		Payload:     []byte(`{"k":"v"}`),
	})
	if err != nil {
		t.Fatalf("expected normalized destination to match allowlist, got %v", err)
	}
	if result.Destination != "relay.example.com" {
		t.Fatalf("expected normalized destination in result, got %q", result.Destination)
	}
}

func TestSendClassifiesEmptyPayloadAsMetadata(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	result, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: nil})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Classification != ClassMetadataOnly {
		t.Fatalf("expected METADATA_ONLY, got %v", result.Classification)
	}
}

func TestSendClassifiesShortJSONAsMetadata(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	result, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Classification != ClassMetadataOnly {
		t.Fatalf("expected METADATA_ONLY, got %v", result.Classification)
	}
}

func TestSendRejectsShortNonMetadataPayloadAsRaw(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	_, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte("plain text note")})
	if errs.KindOf(err) != errs.KindRawPayloadEgress {
		t.Fatalf("expected RAW_PAYLOAD_EGRESS, got %v", err)
	}
}

func TestSendAcceptsHighEntropyPayloadAsCiphertext(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	payload := randomBytes(t, 256)
	result, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: payload, Type: RequestTypeCapsuleTransfer})
	if err != nil {
		t.Fatalf("expected high-entropy payload to pass as ciphertext, got %v", err)
	}
	if result.Classification != ClassCiphertextCapsule {
		t.Fatalf("expected CIPHERTEXT_CAPSULE, got %v", result.Classification)
	}
}

func TestSendRejectsLowEntropyLongPayloadAsRaw(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	payload := bytes.Repeat([]byte("a"), 256)
	_, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: payload})
	if errs.KindOf(err) != errs.KindRawPayloadEgress {
		t.Fatalf("expected RAW_PAYLOAD_EGRESS for low-entropy long payload, got %v", err)
	}
}

func TestSendRejectsPIIInMetadataPayload(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	payload := []byte(`{"contact":"alice@example.com"}`)
	_, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: payload})
	if errs.KindOf(err) != errs.KindForbiddenPattern {
		t.Fatalf("expected FORBIDDEN_PATTERN, got %v", err)
	}
}

func TestSendDoesNotScanCiphertextForPII(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	payload := randomBytes(t, 256)
	result, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: payload})
	if err != nil {
		t.Fatalf("ciphertext payload should bypass PII scanning, got %v", err)
	}
	if result.Outcome != OutcomeSent {
		t.Fatalf("expected SENT, got %v", result.Outcome)
	}
}

func TestSendRespectsNetworkGateForNonMetadataRequests(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	ctx := planvm.WithNetworkBlocked(context.Background())
	_, err := g.Send(ctx, Request{Destination: "relay.example.com", Payload: randomBytes(t, 256), Type: RequestTypeCapsuleTransfer})
	if errs.KindOf(err) != errs.KindNetworkBlocked {
		t.Fatalf("expected NETWORK_BLOCKED, got %v", err)
	}
}

func TestSendAllowsMetadataThroughNetworkGate(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	ctx := planvm.WithNetworkBlocked(context.Background())
	_, err := g.Send(ctx, Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`), Type: RequestTypeMetadata})
	if err != nil {
		t.Fatalf("expected METADATA request to pass the network gate, got %v", err)
	}
}

func TestSendEnforcesRateLimitPerDestination(t *testing.T) {
	cfg := testCfg()
	cfg.RateLimitPerSecond = 1
	cfg.RateLimitBurst = 1
	g := New(cfg)
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	req := Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`)}
	if _, err := g.Send(context.Background(), req); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := g.Send(context.Background(), req)
	if errs.KindOf(err) != errs.KindRateLimited {
		t.Fatalf("expected RATE_LIMITED on second immediate send, got %v", err)
	}
}

func TestAttemptsRecordsBothSuccessesAndBlocks(t *testing.T) {
	now := time.Now()
	g := New(testCfg(), WithClock(func() time.Time { return now }))
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	_, _ = g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`)})
	_, _ = g.Send(context.Background(), Request{Destination: "evil.example.com", Payload: []byte(`{"a":1}`)})

	attempts := g.Attempts()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 logged attempts, got %d", len(attempts))
	}
	if attempts[0].Reason != OutcomeSent || attempts[1].Reason != OutcomeUnknownDestination {
		t.Fatalf("unexpected attempt reasons: %+v", attempts)
	}
}

func TestStatsReportsTotalsAndAllowlistSize(t *testing.T) {
	g := New(testCfg())
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})
	g.Allow(AllowlistEntry{Destination: "backup.example.com", Active: true})

	_, _ = g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`)})
	_, _ = g.Send(context.Background(), Request{Destination: "unknown.example.com", Payload: []byte(`{"a":1}`)})

	stats := g.Stats()
	if stats.TotalAttempts != 2 || stats.TotalBlocked != 1 || stats.AllowlistSize != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendWithMetricsRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewEgressMetricsWithRegistry(reg)
	g := New(testCfg(), WithMetrics(m))
	g.Allow(AllowlistEntry{Destination: "relay.example.com", Active: true})

	if _, err := g.Send(context.Background(), Request{Destination: "relay.example.com", Payload: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := testutil.ToFloat64(m.BytesClassifiedTotal.WithLabelValues(string(ClassMetadataOnly))); got == 0 {
		t.Fatalf("expected classified bytes recorded, got %v", got)
	}

	if _, err := g.Send(context.Background(), Request{Destination: "nope.example.com", Payload: []byte(`{"a":1}`)}); err == nil {
		t.Fatal("expected unknown destination to be rejected")
	}
	if got := testutil.ToFloat64(m.BlockedTotal.WithLabelValues(string(OutcomeUnknownDestination))); got != 1 {
		t.Fatalf("expected 1 blocked UNKNOWN_DESTINATION recorded, got %v", got)
	}
}

func TestNormalizeDestinationStripsSchemeAndPath(t *testing.T) {
	cases := map[string]string{
		"relay.example.com":                   "relay.example.com",
		"https://relay.example.com/v1/ingest": "relay.example.com",
		"WSS://Relay.Example.com":             "relay.example.com",
	}
	for in, want := range cases {
		if got := normalizeDestination(in); got != want {
			t.Fatalf("normalizeDestination(%q) = %q, want %q", in, got, want)
		}
	}
}

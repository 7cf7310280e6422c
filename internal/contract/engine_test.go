/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package contract

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/inbox"
	"github.com/veilmesh/nodecore/internal/sensitivity"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func testCfg() config.ContractOptions {
	return config.ContractOptions{DefaultTTL: 24 * time.Hour}
}

func sampleReq() *inbox.Request {
	now := time.Now()
	return &inbox.Request{
		ID:             "req-1",
		RequesterID:    "requester-1",
		Type:           inbox.RequestTypeBroadcast,
		RequiredLabels: []string{"health:vitals:hr"},
		OptionalLabels: []string{"location.coarse"},
		Window:         inbox.TimeWindow{Start: now, End: now.Add(time.Hour)},
		OutputMode:     inbox.OutputModeAggregateOnly,
		Compensation:   inbox.Compensation{Amount: 1, Currency: "USD"},
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
}

func TestBuildMintsUniqueNonces(t *testing.T) {
	e := New("node-1", mustKey(t), testCfg())
	req := sampleReq()
	choices := UserChoices{SelectedLabels: []string{"health:vitals:hr"}}

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		d, err := e.Build(req, choices)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if seen[d.Nonce] {
			t.Fatalf("duplicate nonce %q", d.Nonce)
		}
		seen[d.Nonce] = true
		if seen[d.ID] {
			t.Fatalf("duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestBuildRejectsSelectionOutsideRequiredOrOptional(t *testing.T) {
	e := New("node-1", mustKey(t), testCfg())
	req := sampleReq()
	choices := UserChoices{SelectedLabels: []string{"health:vitals:hr", "finance:balance:total"}}

	if _, err := e.Build(req, choices); err == nil {
		t.Fatal("expected error selecting a label outside required ∪ optional")
	}
}

func TestBuildRejectsMissingRequiredLabel(t *testing.T) {
	e := New("node-1", mustKey(t), testCfg())
	req := sampleReq()
	choices := UserChoices{SelectedLabels: []string{"location.coarse"}}

	if _, err := e.Build(req, choices); err == nil {
		t.Fatal("expected error omitting a required label from selection")
	}
}

func TestBuildRejectsNonPositiveTTLWhenNoDefault(t *testing.T) {
	e := New("node-1", mustKey(t), config.ContractOptions{})
	req := sampleReq()
	choices := UserChoices{SelectedLabels: []string{"health:vitals:hr"}, TTL: -time.Second}

	if _, err := e.Build(req, choices); err == nil {
		t.Fatal("expected error for non-positive TTL with no configured default")
	}
}

func TestCanonicalBytesIsDeterministic(t *testing.T) {
	d := sampleDraft()
	a := CanonicalBytes(d)
	b := CanonicalBytes(d)
	if string(a) != string(b) {
		t.Fatal("CanonicalBytes is not deterministic across repeated calls")
	}
	if ContractHash(d) != ContractHash(d) {
		t.Fatal("ContractHash is not deterministic across repeated calls")
	}
}

func TestCanonicalBytesIgnoresCollectionOrder(t *testing.T) {
	d1 := sampleDraft()
	d1.SelectedLabels = []string{"a", "b", "c"}

	d2 := sampleDraft()
	d2.SelectedLabels = []string{"c", "a", "b"}
	d2.ID = d1.ID
	d2.Nonce = d1.Nonce
	d2.CreatedAt = d1.CreatedAt
	d2.Window = d1.Window

	if ContractHash(d1) != ContractHash(d2) {
		t.Fatal("canonical hash should be independent of input label order")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := mustKey(t)
	e := New("node-1", kp, testCfg())
	d := sampleDraft()

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sc.Status != StatusDSSigned {
		t.Fatalf("expected DS_SIGNED after Sign, got %s", sc.Status)
	}

	if err := Verify(sc, &kp.PublicKey, nil, time.Now()); err != nil {
		t.Fatalf("Verify should accept a freshly signed contract: %v", err)
	}
}

func TestVerifyRejectsTamperedDraft(t *testing.T) {
	kp := mustKey(t)
	e := New("node-1", kp, testCfg())
	d := sampleDraft()

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sc.Draft.SelectedLabels = append(sc.Draft.SelectedLabels, "injected:label:here")

	err = Verify(sc, &kp.PublicKey, nil, time.Now())
	if err == nil {
		t.Fatal("expected Verify to reject a tampered draft")
	}
	if got := errs.KindOf(err); got != errs.KindContractTampered {
		t.Fatalf("expected KindContractTampered, got %v", got)
	}
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	kp := mustKey(t)
	other := mustKey(t)
	e := New("node-1", kp, testCfg())
	d := sampleDraft()

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(sc, &other.PublicKey, nil, time.Now()); err == nil {
		t.Fatal("expected Verify to reject a signature checked under the wrong key")
	}
}

func TestSignRejectsExpiredDraft(t *testing.T) {
	kp := mustKey(t)
	e := New("node-1", kp, testCfg())
	d := sampleDraft()
	d.CreatedAt = time.Now().Add(-48 * time.Hour)
	d.TTL = time.Hour

	_, err := e.Sign(d)
	if err == nil {
		t.Fatal("expected Sign to reject an already-expired draft")
	}
	if got := errs.KindOf(err); got != errs.KindExpired {
		t.Fatalf("expected KindExpired, got %v", got)
	}
}

func TestVerifyRejectsExpiredContract(t *testing.T) {
	kp := mustKey(t)
	e := New("node-1", kp, testCfg())
	d := sampleDraft()
	d.TTL = time.Hour

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	future := d.CreatedAt.Add(2 * time.Hour)
	if err := Verify(sc, &kp.PublicKey, nil, future); err == nil {
		t.Fatal("expected Verify to reject a contract past its TTL")
	}
}

func TestAddCountersignatureHappyPath(t *testing.T) {
	nodeKP := mustKey(t)
	reqKP := mustKey(t)
	e := New("node-1", nodeKP, testCfg())
	d := sampleDraft()

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	sig, err := cryptoutil.Sign(reqKP, CanonicalBytes(d))
	if err != nil {
		t.Fatalf("sign requester countersignature: %v", err)
	}

	if err := AddCountersignature(sc, sig, time.Now()); err != nil {
		t.Fatalf("AddCountersignature: %v", err)
	}
	if sc.Status != StatusFullySigned {
		t.Fatalf("expected FULLY_SIGNED, got %s", sc.Status)
	}

	if err := Verify(sc, &nodeKP.PublicKey, &reqKP.PublicKey, time.Now()); err != nil {
		t.Fatalf("Verify should accept a fully-signed contract: %v", err)
	}
}

func TestAddCountersignatureRejectsRepeat(t *testing.T) {
	nodeKP := mustKey(t)
	reqKP := mustKey(t)
	e := New("node-1", nodeKP, testCfg())
	d := sampleDraft()

	sc, err := e.Sign(d)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	sig, err := cryptoutil.Sign(reqKP, CanonicalBytes(d))
	if err != nil {
		t.Fatalf("sign requester countersignature: %v", err)
	}
	if err := AddCountersignature(sc, sig, time.Now()); err != nil {
		t.Fatalf("first AddCountersignature: %v", err)
	}
	if err := AddCountersignature(sc, sig, time.Now()); err == nil {
		t.Fatal("expected second AddCountersignature to be rejected")
	}
}

func TestAddCountersignatureRejectsBeforeSigning(t *testing.T) {
	d := sampleDraft()
	sc := &SignedContract{Draft: *d, ContractHash: ContractHash(d), Status: StatusDraft}

	if err := AddCountersignature(sc, []byte("sig"), time.Now()); err == nil {
		t.Fatal("expected AddCountersignature to require DS_SIGNED first")
	}
}

func TestRejectProducesTerminalState(t *testing.T) {
	e := New("node-1", mustKey(t), testCfg())
	d := sampleDraft()
	sc := e.Reject(d)
	if sc.Status != StatusRejected {
		t.Fatalf("expected REJECTED, got %s", sc.Status)
	}
}

func TestEngineWithMetricsRecordsSignatureTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewContractMetricsWithRegistry(reg)
	e := New("node-1", mustKey(t), testCfg(), WithMetrics(m))
	d := sampleDraft()

	if _, err := e.Sign(d); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got := testutil.ToFloat64(m.SignaturesTotal.WithLabelValues(string(StatusDSSigned))); got != 1 {
		t.Fatalf("expected 1 DS_SIGNED signature recorded, got %v", got)
	}

	e.Reject(d)
	if got := testutil.ToFloat64(m.SignaturesTotal.WithLabelValues(string(StatusRejected))); got != 1 {
		t.Fatalf("expected 1 REJECTED signature recorded, got %v", got)
	}
}

func TestApplyForcedDefaultsLowersOutputModeAndStripsPreciseGeo(t *testing.T) {
	d := sampleDraft()
	d.OutputMode = inbox.OutputModeExportAllowed
	d.SelectedLabels = []string{"health:vitals:hr", "geo:precise:1"}

	a := sensitivity.Assessment{
		RiskLevel: sensitivity.RiskHigh,
		Protections: sensitivity.ProtectionSet{
			sensitivity.ProtectionCleanRoomOnly: true,
			sensitivity.ProtectionCoarseGeo:     true,
		},
	}

	out := ApplyForcedDefaults(d, a)

	if out.OutputMode != inbox.OutputModeCleanRoom {
		t.Fatalf("expected output mode forced to CLEAN_ROOM, got %s", out.OutputMode)
	}
	for _, l := range out.SelectedLabels {
		if sensitivity.IsPreciseGeoLabel(l) {
			t.Fatalf("expected precise geo label stripped, found %q", l)
		}
	}
	if out.Metadata["sensitivity_forced"] != "true" {
		t.Fatal("expected forced-change metadata marker")
	}
	if d.OutputMode != inbox.OutputModeExportAllowed {
		t.Fatal("ApplyForcedDefaults must not mutate the input draft")
	}
}

func TestApplyForcedDefaultsNoOpWhenNoProtectionsRequired(t *testing.T) {
	d := sampleDraft()
	d.OutputMode = inbox.OutputModeExportAllowed

	out := ApplyForcedDefaults(d, sensitivity.Assessment{RiskLevel: sensitivity.RiskNone})

	if out.OutputMode != d.OutputMode {
		t.Fatal("expected output mode unchanged when no protections are required")
	}
	if out.Metadata["sensitivity_forced"] != "" {
		t.Fatal("expected no forced-change marker when nothing was forced")
	}
}

func sampleDraft() *Draft {
	now := time.Now()
	return &Draft{
		ID:             "draft-1",
		RequestID:      "req-1",
		RequesterID:    "requester-1",
		NodeID:         "node-1",
		SelectedLabels: []string{"health:vitals:hr"},
		Window:         inbox.TimeWindow{Start: now, End: now.Add(time.Hour)},
		OutputMode:     inbox.OutputModeAggregateOnly,
		Compensation:   inbox.Compensation{Amount: 1, Currency: "USD"},
		EscrowRef:      "escrow-1",
		TTL:            24 * time.Hour,
		Obligation:     ObligationTerms{RetentionDays: 30, RetentionPolicy: "delete-on-expiry"},
		Nonce:          "nonce-1",
		CreatedAt:      now,
		Metadata:       map[string]string{},
	}
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp.Private
}

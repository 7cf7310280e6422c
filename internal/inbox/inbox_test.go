/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/pkg/claims"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func testInboxConfig(capacity int) config.InboxOptions {
	return config.InboxOptions{Capacity: capacity, SeenNonceTTL: time.Hour}
}

func newHarness(t *testing.T, capacity int) (*Inbox, *cryptoutil.KeyPair, *time.Time) {
	t.Helper()
	policy, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	clock := time.Now()
	clockPtr := &clock
	m := metrics.NewInboxMetricsWithRegistry(prometheus.NewRegistry())
	ib := NewWithNonceStore(testInboxConfig(capacity), policy.Public, newInProcessNonceStore(), WithMetrics(m), WithClock(func() time.Time { return *clockPtr }))
	return ib, policy, clockPtr
}

func validRequest(t *testing.T, policy *cryptoutil.KeyPair, now time.Time) *Request {
	t.Helper()
	stamp, err := claims.SignPolicyStamp(policy.Private, "requester-a", "authority-a",
		[]string{"domain:activity:walking"}, "AGGREGATE_ONLY", time.Hour)
	require.NoError(t, err)

	return &Request{
		ID:             "req-1",
		RequesterID:    "requester-a",
		Type:           RequestTypeTargeted,
		RequiredLabels: []string{"domain:activity:walking"},
		OutputMode:     OutputModeAggregateOnly,
		PolicyStamp:    stamp,
		Signature:      strings.Repeat("a", 64),
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
}

func TestReceiveAcceptsValidRequest(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, 1, ib.Len())
}

func TestReceiveRejectsExpired(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)
	r.ExpiresAt = clock.Add(-time.Minute)

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
}

func TestReceiveRejectsShortSignature(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)
	r.Signature = "too-short"

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidSignature, outcome)
}

func TestReceiveRejectsMissingPolicyStamp(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)
	r.PolicyStamp = ""

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMissingPolicyStamp, outcome)
}

func TestReceiveRejectsInvalidPolicyStamp(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)

	other, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	forged, err := claims.SignPolicyStamp(other.Private, "requester-a", "authority-a",
		[]string{"domain:activity:walking"}, "AGGREGATE_ONLY", time.Hour)
	require.NoError(t, err)
	r.PolicyStamp = forged

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidPolicyStamp, outcome)
}

func TestReceiveRejectsReplay(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome)

	outcome, err = ib.Receive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayDetected, outcome)
}

func TestReceiveRejectsWhenFull(t *testing.T) {
	ib, policy, clock := newHarness(t, 1)
	r1 := validRequest(t, policy, *clock)
	r1.ID = "req-1"

	outcome, err := ib.Receive(context.Background(), r1)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome)

	r2 := validRequest(t, policy, *clock)
	r2.ID = "req-2"
	outcome, err = ib.Receive(context.Background(), r2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInboxFull, outcome)
}

func TestReceiveEvictsExpiredBeforeRejectingFull(t *testing.T) {
	ib, policy, clock := newHarness(t, 1)
	r1 := validRequest(t, policy, *clock)
	r1.ID = "req-1"
	r1.ExpiresAt = clock.Add(time.Minute)

	outcome, err := ib.Receive(context.Background(), r1)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome)

	*clock = clock.Add(2 * time.Minute)

	r2 := validRequest(t, policy, *clock)
	r2.ID = "req-2"
	outcome, err = ib.Receive(context.Background(), r2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome, "the expired req-1 should have been evicted to make room")
	assert.Equal(t, 1, ib.Len())
}

func TestByTypeAndByIdentityPruneExpired(t *testing.T) {
	ib, policy, clock := newHarness(t, 8)
	r := validRequest(t, policy, *clock)
	r.ExpiresAt = clock.Add(time.Minute)

	outcome, err := ib.Receive(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome)

	assert.Len(t, ib.ByType(RequestTypeTargeted), 1)
	got, ok := ib.ByIdentity(r.ID)
	require.True(t, ok)
	assert.Equal(t, r.ID, got.ID)

	*clock = clock.Add(2 * time.Minute)
	assert.Empty(t, ib.ByType(RequestTypeTargeted))
	_, ok = ib.ByIdentity(r.ID)
	assert.False(t, ok)
}

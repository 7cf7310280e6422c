/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

func sampleRequest() *Request {
	now := time.Now()
	return &Request{
		ID:             "req-1",
		RequesterID:    "requester-a",
		Type:           RequestTypeTargeted,
		RequiredLabels: []string{"domain:activity:walking"},
		OptionalLabels: []string{"time:period:morning"},
		Geo:            GeoConstraint{RegionCode: "US-CA", Resolution: GeoResolutionCity},
		OutputMode:     OutputModeAggregateOnly,
		Compensation:   Compensation{Amount: 0, Currency: "USD"},
		PolicyStamp:    "stamp",
		Signature:      strings.Repeat("a", 64),
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
}

func TestDefaultSignatureVerifierEnforcesMinLength(t *testing.T) {
	r := sampleRequest()
	assert.True(t, DefaultSignatureVerifier{}.Verify(r))

	r.Signature = strings.Repeat("a", 63)
	assert.False(t, DefaultSignatureVerifier{}.Verify(r))
}

func TestECDSASignatureVerifierAcceptsValidRejectsTampered(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	r := sampleRequest()
	sig, err := cryptoutil.Sign(kp.Private, SignableBytes(r))
	require.NoError(t, err)
	r.Signature = hex.EncodeToString(sig)

	resolve := func(id string) (*ecdsa.PublicKey, error) { return kp.Public, nil }
	v := ECDSASignatureVerifier{Resolve: resolve}
	assert.True(t, v.Verify(r))

	tampered := sampleRequest()
	tampered.Signature = r.Signature
	tampered.RequesterID = "someone-else"
	assert.False(t, v.Verify(tampered))
}

func TestECDSASignatureVerifierRejectsUnresolvableRequester(t *testing.T) {
	r := sampleRequest()
	r.Signature = hex.EncodeToString([]byte(strings.Repeat("x", 64)))
	v := ECDSASignatureVerifier{Resolve: func(id string) (*ecdsa.PublicKey, error) {
		return nil, errors.New("no such key")
	}}
	assert.False(t, v.Verify(r))
}

func TestSignableBytesIsOrderIndependentOverLabels(t *testing.T) {
	a := sampleRequest()
	a.RequiredLabels = []string{"b", "a"}
	b := sampleRequest()
	b.RequiredLabels = []string{"a", "b"}
	b.ID = a.ID
	b.CreatedAt = a.CreatedAt
	b.ExpiresAt = a.ExpiresAt
	assert.Equal(t, SignableBytes(a), SignableBytes(b))
}

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

package claims

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSignAndVerifyPolicyStampRoundTrip(t *testing.T) {
	priv := genKey(t)
	stamp, err := SignPolicyStamp(priv, "requester-1", "authority-a", []string{"location.coarse", "activity.walking"}, "AGGREGATE_ONLY", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyPolicyStamp(stamp, &priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "requester-1", claims.RequesterID)
	assert.Equal(t, "AGGREGATE_ONLY", claims.MaxOutputMode)
	assert.True(t, claims.AllowsLabel("location.coarse"))
	assert.False(t, claims.AllowsLabel("health.heartrate"))
}

func TestVerifyPolicyStampRejectsWrongKey(t *testing.T) {
	priv := genKey(t)
	other := genKey(t)
	stamp, err := SignPolicyStamp(priv, "requester-1", "authority-a", nil, "CLEAN_ROOM", time.Hour)
	require.NoError(t, err)

	_, err = VerifyPolicyStamp(stamp, &other.PublicKey)
	assert.Error(t, err)
}

func TestVerifyPolicyStampRejectsExpired(t *testing.T) {
	priv := genKey(t)
	stamp, err := SignPolicyStamp(priv, "requester-1", "authority-a", nil, "CLEAN_ROOM", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyPolicyStamp(stamp, &priv.PublicKey)
	assert.Error(t, err)
}

func TestVerifyPolicyStampRejectsEmpty(t *testing.T) {
	priv := genKey(t)
	_, err := VerifyPolicyStamp("", &priv.PublicKey)
	assert.Error(t, err)
}

func TestVerifyPolicyStampStripsBearerPrefix(t *testing.T) {
	priv := genKey(t)
	stamp, err := SignPolicyStamp(priv, "requester-1", "authority-a", []string{"x"}, "EXPORT_ALLOWED", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyPolicyStamp("Bearer "+stamp, &priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "requester-1", claims.RequesterID)
}

func TestExtractClaimsFromJWTMapsKnownFields(t *testing.T) {
	priv := genKey(t)
	stamp, err := SignPolicyStamp(priv, "requester-9", "authority-b", []string{"a", "b"}, "RAW_EXPORT", time.Hour)
	require.NoError(t, err)
	claims, err := VerifyPolicyStamp(stamp, &priv.PublicKey)
	require.NoError(t, err)

	rules := []ClaimMappingRule{
		{Claim: "requester_id", Header: "X-Requester-Id"},
		{Claim: "max_output_mode", Header: "X-Max-Output-Mode"},
		{Claim: "unknown_field", Header: "X-Unknown"},
	}
	result := ExtractClaimsFromJWT(claims, rules)
	assert.Equal(t, "requester-9", result["X-Requester-Id"])
	assert.Equal(t, "RAW_EXPORT", result["X-Max-Output-Mode"])
	_, exists := result["X-Unknown"]
	assert.False(t, exists)
}

func TestExtractClaimsFromJWTNilInputs(t *testing.T) {
	assert.Nil(t, ExtractClaimsFromJWT(nil, []ClaimMappingRule{{Claim: "requester_id", Header: "X"}}))
}

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

// Package claims verifies policy stamps: JWTs issued by a node's trusted
// policy authority that accompany a Data Request and assert what the
// requester is permitted to ask for. Unlike a bearer token whose signature
// a mesh sidecar has already checked, a policy stamp arrives over a direct
// device-to-device channel with no upstream verifier, so the signature is
// always checked here — there is no Istio to trust.
package claims

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PolicyStampClaims are the registered and custom claims carried by a
// policy stamp. AllowedLabels/MaxOutputMode describe what the stamped
// request may ask the Sensitivity Gate and Contract Engine for.
// VerifyPolicyStamp checks only the stamp's signature and expiry; the
// Request Inbox, its only caller, does not compare a request's labels or
// output mode against these claims.
type PolicyStampClaims struct {
	jwt.RegisteredClaims

	RequesterID    string   `json:"requester_id"`
	AllowedLabels  []string `json:"allowed_labels"`
	MaxOutputMode  string   `json:"max_output_mode"`
	IssuingAuthority string `json:"iss_authority"`
}

// ClaimMappingRule represents a single claim-to-header mapping rule, used
// to project selected policy-stamp claims onto outbound transport headers
// (e.g. for a connector that forwards requests to an upstream broker).
type ClaimMappingRule struct {
	Claim  string
	Header string
}

// VerifyPolicyStamp parses and verifies a policy stamp JWT against the
// issuing authority's public key. It rejects tokens that are malformed,
// expired, or signed by any key other than pub. Grounded on the Request
// Inbox invariant that a request is actionable only if its policy stamp
// is both present and valid (§3).
func VerifyPolicyStamp(stamp string, pub *ecdsa.PublicKey) (*PolicyStampClaims, error) {
	stamp = strings.TrimPrefix(stamp, "Bearer ")
	stamp = strings.TrimPrefix(stamp, "bearer ")
	if stamp == "" {
		return nil, fmt.Errorf("claims: empty policy stamp")
	}

	claims := &PolicyStampClaims{}
	token, err := jwt.ParseWithClaims(stamp, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("claims: unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("claims: policy stamp verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("claims: policy stamp is not valid")
	}
	return claims, nil
}

// SignPolicyStamp issues a policy stamp for requesterID, scoping it to the
// given label set and maximum output mode, expiring after ttl. Used by
// test fixtures and by a policy-authority component standing in for the
// off-device issuer in integration tests.
func SignPolicyStamp(priv *ecdsa.PrivateKey, requesterID, issuingAuthority string, allowedLabels []string, maxOutputMode string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PolicyStampClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RequesterID:      requesterID,
		AllowedLabels:    allowedLabels,
		MaxOutputMode:    maxOutputMode,
		IssuingAuthority: issuingAuthority,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(priv)
}

// AllowsLabel reports whether label is within the stamp's allowed set.
func (c *PolicyStampClaims) AllowsLabel(label string) bool {
	for _, l := range c.AllowedLabels {
		if l == label {
			return true
		}
	}
	return false
}

// ExtractClaimsFromJWT projects the given claim-to-header rules onto an
// already-verified policy stamp's registered/custom fields. Only the
// fields PolicyStampClaims exposes are addressable; unknown claim names
// resolve to "" and are omitted.
func ExtractClaimsFromJWT(claims *PolicyStampClaims, rules []ClaimMappingRule) map[string]string {
	if claims == nil || len(rules) == 0 {
		return nil
	}
	result := make(map[string]string)
	for _, rule := range rules {
		value := resolveClaimValue(claims, rule.Claim)
		if value != "" {
			result[rule.Header] = value
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func resolveClaimValue(claims *PolicyStampClaims, name string) string {
	switch name {
	case "requester_id":
		return claims.RequesterID
	case "max_output_mode":
		return claims.MaxOutputMode
	case "iss_authority":
		return claims.IssuingAuthority
	case "subject":
		return claims.Subject
	case "allowed_labels":
		return strings.Join(claims.AllowedLabels, ",")
	default:
		return ""
	}
}

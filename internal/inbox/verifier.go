/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// SignatureVerifier checks a request's signature. Pluggable so a deployment
// that wires real per-requester public keys can swap in a stricter check
// than the structural default.
type SignatureVerifier interface {
	Verify(r *Request) bool
}

// DefaultSignatureVerifier enforces only the minimum the external interface
// names: signature present, at least 64 characters. It performs no
// cryptographic check, so it must never be used once a real key resolver is
// available.
type DefaultSignatureVerifier struct{}

// Verify reports whether r.Signature meets the structural minimum.
func (DefaultSignatureVerifier) Verify(r *Request) bool {
	return len(r.Signature) >= minSignatureLength
}

// KeyResolver looks up the pairwise public key a requester is expected to
// sign with, by requester id.
type KeyResolver func(requesterID string) (*ecdsa.PublicKey, error)

// ECDSASignatureVerifier verifies a hex-encoded ASN.1 signature over the
// request's signable bytes against the requester's resolved public key.
type ECDSASignatureVerifier struct {
	Resolve KeyResolver
}

// Verify reports whether r.Signature is a valid ECDSA signature over
// SignableBytes(r) under the key Resolve returns for r.RequesterID.
func (v ECDSASignatureVerifier) Verify(r *Request) bool {
	if v.Resolve == nil || len(r.Signature) < minSignatureLength {
		return false
	}
	pub, err := v.Resolve(r.RequesterID)
	if err != nil || pub == nil {
		return false
	}
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return false
	}
	return cryptoutil.Verify(pub, SignableBytes(r), sig)
}

// SignableBytes produces the deterministic byte form a request's signature
// is computed over: the fields that identify and bound the request, joined
// in a fixed order so the same logical request always signs the same bytes
// regardless of field construction order. Label sets are sorted first, so
// two requests differing only in slice order sign identically.
func SignableBytes(r *Request) []byte {
	required := append([]string(nil), r.RequiredLabels...)
	optional := append([]string(nil), r.OptionalLabels...)
	sort.Strings(required)
	sort.Strings(optional)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s|%s|%d|%d",
		r.ID, r.RequesterID, r.Type, strings.Join(required, ","),
		strings.Join(optional, ","), r.Geo.RegionCode, r.Geo.Resolution,
		r.OutputMode, r.CreatedAt.UnixNano(), r.ExpiresAt.UnixNano())
	return []byte(b.String())
}

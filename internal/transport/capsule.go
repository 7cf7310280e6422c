/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// ciphertextEntropyFloor is the minimum Shannon entropy (bits/byte) a
// capsule's ciphertext must clear before any chunk of it may leave the
// device (§4.11).
const ciphertextEntropyFloor = 7.0

// NewCapsuleHeader builds a header for a fresh capsule, minting its id the
// way every other component in this node mints identifiers.
func NewCapsuleHeader(planID, contractID, nodeID, requesterID string, ttl time.Duration, now time.Time) CapsuleHeader {
	return CapsuleHeader{
		ID:            uuid.New().String(),
		PlanID:        planID,
		ContractID:    contractID,
		TTL:           ttl,
		SchemaVersion: 1,
		NodeID:        nodeID,
		RequesterID:   requesterID,
		CreatedAt:     now,
	}
}

// Pack seals plaintext into a Capsule: a fresh per-capsule symmetric key
// encrypts the payload, the symmetric key is wrapped under sessionKey, and
// the whole thing is bound together by a node-signed hash over the
// canonical header and ciphertext (§4.11, §6).
func Pack(header CapsuleHeader, plaintext []byte, sessionKey []byte, planHash string, nodeKey *ecdsa.PrivateKey) (*Capsule, error) {
	symKey, err := cryptoutil.RandomKey(32)
	if err != nil {
		return nil, fmt.Errorf("transport: pack: %w", err)
	}

	headerBytes := canonicalHeaderBytes(header)
	sealed, err := cryptoutil.Seal(symKey, plaintext, headerBytes)
	if err != nil {
		return nil, fmt.Errorf("transport: pack: seal payload: %w", err)
	}

	if err := VerifyCiphertextEntropy(sealed.Ciphertext); err != nil {
		return nil, err
	}

	wrapped, err := cryptoutil.Seal(sessionKey, symKey, []byte(header.ID))
	if err != nil {
		return nil, fmt.Errorf("transport: pack: wrap key: %w", err)
	}

	capsuleHash := computeCapsuleHash(headerBytes, sealed.Ciphertext)
	sig, err := cryptoutil.Sign(nodeKey, []byte(capsuleHash))
	if err != nil {
		return nil, fmt.Errorf("transport: pack: sign: %w", err)
	}

	return &Capsule{
		Header:     header,
		IV:         sealed.IV,
		Ciphertext: sealed.Ciphertext,
		Tag:        sealed.Tag,
		KeyWrap: KeyWrap{
			IV:         wrapped.IV,
			Ciphertext: wrapped.Ciphertext,
			Tag:        wrapped.Tag,
		},
		Proof: Proof{
			CapsuleHash: capsuleHash,
			NodeSig:     sig,
			ContractID:  header.ContractID,
			PlanHash:    planHash,
			SignedAt:    header.CreatedAt,
		},
	}, nil
}

// Unpack verifies a Capsule's proof block and decrypts its payload. It
// rejects tampered capsules and capsules whose TTL has elapsed.
func Unpack(c *Capsule, sessionKey []byte, nodePub *ecdsa.PublicKey, now time.Time) ([]byte, error) {
	if now.After(c.Header.CreatedAt.Add(c.Header.TTL)) {
		return nil, errs.New(errs.KindExpired, "capsule TTL has elapsed")
	}

	headerBytes := canonicalHeaderBytes(c.Header)
	wantHash := computeCapsuleHash(headerBytes, c.Ciphertext)
	if wantHash != c.Proof.CapsuleHash {
		return nil, errs.New(errs.KindCapsuleTampered, "capsule hash does not match header and ciphertext")
	}
	if !cryptoutil.Verify(nodePub, []byte(wantHash), c.Proof.NodeSig) {
		return nil, errs.New(errs.KindCapsuleTampered, "capsule proof signature is invalid")
	}

	symKey, err := cryptoutil.Open(sessionKey, &cryptoutil.SealedBox{
		IV:         c.KeyWrap.IV,
		Ciphertext: c.KeyWrap.Ciphertext,
		Tag:        c.KeyWrap.Tag,
	}, []byte(c.Header.ID))
	if err != nil {
		return nil, errs.Wrap(errs.KindCapsuleTampered, "capsule key-wrap failed to open", err)
	}

	plaintext, err := cryptoutil.Open(symKey, &cryptoutil.SealedBox{
		IV:         c.IV,
		Ciphertext: c.Ciphertext,
		Tag:        c.Tag,
	}, headerBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindCapsuleTampered, "capsule payload failed to open", err)
	}
	return plaintext, nil
}

// minEntropySampleBytes is the smallest ciphertext a byte-frequency
// Shannon-entropy estimate can plausibly clear the 7.0 bits/byte floor
// over: the estimator's ceiling is log2(min(256, n)), so samples much
// below 256 bytes cap out under the floor regardless of how random the
// underlying bytes are. Below this size the check is skipped rather than
// penalizing small capsules for a measurement artifact.
const minEntropySampleBytes = 256

// VerifyCiphertextEntropy enforces §4.11's pre-send check: a capsule's
// ciphertext must look like ciphertext before any chunk of it is allowed
// to leave the device.
func VerifyCiphertextEntropy(ciphertext []byte) error {
	if len(ciphertext) < minEntropySampleBytes {
		return nil
	}
	if cryptoutil.ShannonEntropy(ciphertext) < ciphertextEntropyFloor {
		return errs.New(errs.KindCapsuleTampered, "ciphertext entropy below the pre-send floor")
	}
	return nil
}

func computeCapsuleHash(headerBytes, ciphertext []byte) string {
	h := sha256.New()
	h.Write(headerBytes)
	h.Write(ciphertext)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalHeaderBytes serializes a CapsuleHeader in the same
// lexicographic-field-order, name=value\n style the Contract Engine uses
// for canonical bytes (§6), so the capsule hash is deterministic across
// processes and reproducible by any verifier.
func canonicalHeaderBytes(h CapsuleHeader) []byte {
	fields := map[string]string{
		"contract_id":    h.ContractID,
		"created_at":     h.CreatedAt.UTC().Format(time.RFC3339Nano),
		"id":             h.ID,
		"node_id":        h.NodeID,
		"plan_id":        h.PlanID,
		"requester_id":   h.RequesterID,
		"schema_version": fmt.Sprintf("%d", h.SchemaVersion),
		"ttl_ns":         fmt.Sprintf("%d", int64(h.TTL)),
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

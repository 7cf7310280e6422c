/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// GenesisPrevHash is the previous-hash value of the first entry in a chain.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

func init() {
	if len(GenesisPrevHash) != 64 {
		panic("audit: GenesisPrevHash must be 64 hex characters")
	}
}

// chain tracks the tip of the hash chain and assigns the next sequence
// number and previous-hash to each appended entry. It holds no persistence
// concern of its own — Logger owns durability.
type chain struct {
	mu       sync.Mutex
	nodeID   string
	lastSeq  uint64
	lastHash string
}

func newChain(nodeID string) *chain {
	return &chain{nodeID: nodeID, lastHash: GenesisPrevHash}
}

// append computes the next Entry in the chain under lock, advancing the tip.
func (c *chain) append(eventType, description string, details map[string]any) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.lastSeq + 1
	ts := time.Now().UTC()
	hash, err := computeEntryHash(seq, c.lastHash, eventType, description, details, ts.UnixMilli())
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Seq:         seq,
		EventType:   eventType,
		Description: description,
		Details:     details,
		Timestamp:   ts,
		PrevHash:    c.lastHash,
		EntryHash:   hash,
		NodeID:      c.nodeID,
	}
	c.lastSeq = seq
	c.lastHash = hash
	return entry, nil
}

// resume fast-forwards the chain tip to follow an already-persisted entry,
// used on startup so a restarted node continues the chain rather than
// forking it from genesis.
func (c *chain) resume(seq uint64, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.lastSeq {
		c.lastSeq = seq
		c.lastHash = hash
	}
}

// length returns the current chain tip sequence number (0 if empty).
func (c *chain) length() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// computeEntryHash computes entry-hash = H(seq || prev_hash || event-type ||
// description || serialized-details || timestamp-ms), per §4.2. Details are
// serialized with encoding/json, which sorts map keys, so the digest is
// deterministic regardless of map iteration order.
func computeEntryHash(seq uint64, prevHash, eventType, description string, details map[string]any, timestampMs int64) (string, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("audit: marshal details: %w", err)
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d|%s|%s|%s|%s|%d", seq, prevHash, eventType, description, detailsJSON, timestampMs)

	sum := sha256.Sum256([]byte(buf.String()))
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEntryHash recomputes an entry's hash and reports whether it matches
// the stored EntryHash, independent of chain position.
func VerifyEntryHash(e *Entry) (bool, error) {
	want, err := computeEntryHash(e.Seq, e.PrevHash, e.EventType, e.Description, e.Details, e.Timestamp.UnixMilli())
	if err != nil {
		return false, err
	}
	return want == e.EntryHash, nil
}

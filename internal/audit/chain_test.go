/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainAppendGenesis(t *testing.T) {
	c := newChain("node-1")
	e, err := c.append(EventRequestReceived, "request accepted", map[string]any{"id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, GenesisPrevHash, e.PrevHash)
	assert.Len(t, e.EntryHash, 64)
	assert.Equal(t, "node-1", e.NodeID)
}

func TestChainAppendLinksConsecutiveEntries(t *testing.T) {
	c := newChain("node-1")
	e1, err := c.append(EventRequestReceived, "first", nil)
	require.NoError(t, err)
	e2, err := c.append(EventContractSigned, "second", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, e1.EntryHash, e2.PrevHash)
	assert.NotEqual(t, e1.EntryHash, e2.EntryHash)
}

func TestChainAppendIsDeterministicGivenSameTimestamp(t *testing.T) {
	h1, err := computeEntryHash(1, GenesisPrevHash, EventPlanExecuted, "desc", map[string]any{"b": 2, "a": 1}, 1000)
	require.NoError(t, err)
	h2, err := computeEntryHash(1, GenesisPrevHash, EventPlanExecuted, "desc", map[string]any{"a": 1, "b": 2}, 1000)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "map key order must not affect the digest")
}

func TestChainAppendDiffersOnAnyField(t *testing.T) {
	base, err := computeEntryHash(1, GenesisPrevHash, EventPlanExecuted, "desc", nil, 1000)
	require.NoError(t, err)

	variants := []string{}
	h, _ := computeEntryHash(2, GenesisPrevHash, EventPlanExecuted, "desc", nil, 1000)
	variants = append(variants, h)
	h, _ = computeEntryHash(1, "deadbeef", EventPlanExecuted, "desc", nil, 1000)
	variants = append(variants, h)
	h, _ = computeEntryHash(1, GenesisPrevHash, EventCryptoShred, "desc", nil, 1000)
	variants = append(variants, h)
	h, _ = computeEntryHash(1, GenesisPrevHash, EventPlanExecuted, "other", nil, 1000)
	variants = append(variants, h)
	h, _ = computeEntryHash(1, GenesisPrevHash, EventPlanExecuted, "desc", nil, 2000)
	variants = append(variants, h)

	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestChainResumeFastForwards(t *testing.T) {
	c := newChain("node-1")
	c.resume(41, "deadbeef")
	e, err := c.append(EventCapsuleCreated, "resumed", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), e.Seq)
	assert.Equal(t, "deadbeef", e.PrevHash)
}

func TestChainResumeIgnoresLowerSeq(t *testing.T) {
	c := newChain("node-1")
	c.append(EventCapsuleCreated, "first", nil)
	c.resume(0, "should-be-ignored")
	assert.Equal(t, uint64(1), c.length())
}

func TestChainLength(t *testing.T) {
	c := newChain("node-1")
	assert.Equal(t, uint64(0), c.length())
	c.append(EventPermission, "x", nil)
	assert.Equal(t, uint64(1), c.length())
}

func TestVerifyEntryHashRoundTrip(t *testing.T) {
	c := newChain("node-1")
	e, err := c.append(EventTransferCompleted, "transfer done", map[string]any{"bytes": 128})
	require.NoError(t, err)

	ok, err := VerifyEntryHash(e)
	require.NoError(t, err)
	assert.True(t, ok)

	e.Description = "tampered"
	ok, err = VerifyEntryHash(e)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsValidEventType(t *testing.T) {
	for _, et := range []string{
		EventPermission, EventRequestReceived, EventContractSigned,
		EventPlanExecuted, EventCapsuleCreated, EventTransferCompleted, EventCryptoShred,
	} {
		assert.True(t, IsValidEventType(et))
	}
	assert.False(t, IsValidEventType("NOT_A_REAL_EVENT"))
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/internal/errs"
)

// NewTransfer splits data into chunkSize-sized chunks and starts a
// resumable transfer for it, addressed by a fresh transfer id (§4.11:
// "chunks are transferred under a transfer id").
func NewTransfer(capsuleID string, data []byte, chunkSize int, now time.Time) *Transfer {
	if chunkSize <= 0 {
		chunkSize = len(data)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}
	return &Transfer{
		ID:         uuid.New().String(),
		CapsuleID:  capsuleID,
		ChunkSize:  chunkSize,
		Chunks:     chunks,
		AckedUpTo:  -1,
		State:      SessionTransferring,
		LastActive: now,
	}
}

// Done reports whether every chunk has been acknowledged.
func (t *Transfer) Done() bool {
	return t.AckedUpTo == len(t.Chunks)-1
}

// NextChunk returns the next unacknowledged chunk and its index, or
// ok=false if the transfer is already Done.
func (t *Transfer) NextChunk() (index int, chunk []byte, ok bool) {
	next := t.AckedUpTo + 1
	if next >= len(t.Chunks) {
		return 0, nil, false
	}
	return next, t.Chunks[next], true
}

// Ack records that chunk index was received and authenticated by the
// peer. Acks must arrive in order: acking anything but AckedUpTo+1 is
// rejected, since a resumed transfer always resumes from the last
// acknowledged chunk (§4.11).
func (t *Transfer) Ack(index int, now time.Time) error {
	if index != t.AckedUpTo+1 {
		return errs.New(errs.KindUnauthorized, "out-of-order chunk acknowledgment")
	}
	t.AckedUpTo = index
	t.LastActive = now
	if t.Done() {
		t.State = SessionConnected
	}
	return nil
}

// MarkInterrupted records that the transfer stopped mid-flight and may be
// resumed from the last acknowledged chunk.
func (t *Transfer) MarkInterrupted(now time.Time) {
	t.State = SessionInterrupted
	t.Resumable = true
	t.LastActive = now
}

// Resume clears the interrupted flag so NextChunk continues from
// AckedUpTo+1, the chunk immediately after the last one the peer
// acknowledged before the interruption.
func (t *Transfer) Resume(now time.Time) error {
	if !t.Resumable {
		return errs.New(errs.KindUnauthorized, "transfer is not resumable")
	}
	t.State = SessionTransferring
	t.Resumable = false
	t.LastActive = now
	return nil
}

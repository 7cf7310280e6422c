/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// SendTransfer drives t to completion over conn, sending each unacked
// chunk and waiting for its ack before sending the next, so the transfer
// is strictly ordered and every delivered chunk is peer-confirmed before
// AckedUpTo advances. On ctx cancellation or a write/read deadline
// failure, t is marked INTERRUPTED and resumable so a later call can
// continue from the last acknowledged chunk (§4.11).
func SendTransfer(ctx context.Context, conn *websocket.Conn, t *Transfer, writeTimeout time.Duration, m *metrics.TransportMetrics) error {
	now := time.Now
	for !t.Done() {
		select {
		case <-ctx.Done():
			t.MarkInterrupted(now())
			if m != nil {
				m.RecordTransferInterrupted()
			}
			return errs.New(errs.KindTimeout, "transfer interrupted before completion")
		default:
		}

		index, chunk, ok := t.NextChunk()
		if !ok {
			break
		}

		if err := VerifyCiphertextEntropy(chunk); err != nil {
			return err
		}

		frame := encodeFrame(frameChunk, t.ID, index, chunk)
		if err := conn.SetWriteDeadline(now().Add(writeTimeout)); err != nil {
			t.MarkInterrupted(now())
			return errs.Wrap(errs.KindConnectionError, "set write deadline", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.MarkInterrupted(now())
			if m != nil {
				m.RecordTransferInterrupted()
			}
			return errs.Wrap(errs.KindConnectionError, "write chunk", err)
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.MarkInterrupted(now())
			if m != nil {
				m.RecordTransferInterrupted()
			}
			return errs.Wrap(errs.KindConnectionError, "read ack", err)
		}
		if msgType != websocket.BinaryMessage {
			return fmt.Errorf("transport: unexpected ack message type %d", msgType)
		}
		ack, err := decodeFrame(data)
		if err != nil || ack.kind != frameAck || ack.index != index {
			return fmt.Errorf("transport: unexpected ack for chunk %d", index)
		}

		if err := t.Ack(index, now()); err != nil {
			return err
		}
		if m != nil {
			m.RecordChunkSent("ok")
		}
	}
	return nil
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilmesh/nodecore/pkg/metrics"
)

const (
	frameChunk byte = 0x01
	frameAck   byte = 0x02
)

// ChunkReceiver accepts chunks as a Server reassembles an incoming
// transfer, in order, under its transfer id.
type ChunkReceiver interface {
	ReceiveChunk(transferID string, index int, data []byte) error
}

// ServerConfig configures the websocket transport server, grounded on the
// teacher's facade.ServerConfig.
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int64
}

// DefaultServerConfig returns sane defaults for ServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  1 << 20,
	}
}

// Server accepts incoming websocket sessions and reassembles chunked
// capsule transfers delivered over them.
type Server struct {
	upgrader websocket.Upgrader
	cfg      ServerConfig
	receiver ChunkReceiver
	metrics  *metrics.TransportMetrics
}

// NewServer builds a Server that hands reassembled chunks to receiver.
func NewServer(cfg ServerConfig, receiver ChunkReceiver, m *metrics.TransportMetrics) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		receiver: receiver,
		metrics:  m,
	}
}

// ServeHTTP upgrades the connection and runs the chunk-receive loop until
// the peer closes the connection or a read error occurs.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		frame, err := decodeFrame(data)
		if err != nil {
			return
		}
		if frame.kind != frameChunk {
			continue
		}
		if err := s.receiver.ReceiveChunk(frame.transferID, frame.index, frame.payload); err != nil {
			return
		}
		ack := encodeFrame(frameAck, frame.transferID, frame.index, nil)
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, ack); err != nil {
			return
		}
	}
}

type decodedFrame struct {
	kind       byte
	transferID string
	index      int
	payload    []byte
}

// encodeFrame lays out a wire frame as: 1 byte kind, 2 bytes transfer-id
// length, transfer id, 4 bytes big-endian chunk index, payload.
func encodeFrame(kind byte, transferID string, index int, payload []byte) []byte {
	buf := make([]byte, 0, 1+2+len(transferID)+4+len(payload))
	buf = append(buf, kind)
	idLen := make([]byte, 2)
	binary.BigEndian.PutUint16(idLen, uint16(len(transferID)))
	buf = append(buf, idLen...)
	buf = append(buf, transferID...)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, uint32(index))
	buf = append(buf, idx...)
	buf = append(buf, payload...)
	return buf
}

func decodeFrame(data []byte) (decodedFrame, error) {
	if len(data) < 1+2 {
		return decodedFrame{}, fmt.Errorf("transport: frame too short")
	}
	kind := data[0]
	idLen := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data) < 3+idLen+4 {
		return decodedFrame{}, fmt.Errorf("transport: frame truncated")
	}
	transferID := string(data[3 : 3+idLen])
	index := int(binary.BigEndian.Uint32(data[3+idLen : 3+idLen+4]))
	payload := data[3+idLen+4:]
	return decodedFrame{kind: kind, transferID: transferID, index: index, payload: payload}, nil
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmesh/nodecore/pkg/metrics"
)

func TestExportParquetRoundTrip(t *testing.T) {
	db := &fakeDB{}
	reg := prometheus.NewRegistry()
	m := metrics.NewAuditMetricsWithRegistry(reg)
	l := newLoggerWithPool(db, "node-1", logr.Discard(), m, LoggerConfig{BufferSize: 16, BatchSize: 1, FlushInterval: 5 * time.Millisecond})
	defer func() { _ = l.Close() }()

	ctx := context.Background()
	_, err := l.Append(ctx, EventCapsuleCreated, "capsule minted", map[string]any{"capsule_id": "c1"})
	require.NoError(t, err)
	_, err = l.Append(ctx, EventCryptoShred, "capsule shredded", map[string]any{"capsule_id": "c1"})
	require.NoError(t, err)
	waitForEntries(t, db, 2)

	data, err := l.ExportParquet(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	entries, err := ReadParquetEntries(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, EventCapsuleCreated, entries[0].EventType)
	assert.Equal(t, "c1", entries[0].Details["capsule_id"])
	assert.Equal(t, entries[0].EntryHash, entries[1].PrevHash)
}

func TestReadParquetEntriesEmptyInput(t *testing.T) {
	data, err := writeParquetBytes(nil)
	require.NoError(t, err)

	entries, err := ReadParquetEntries(data)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

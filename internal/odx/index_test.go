/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

func mustEntry(t *testing.T, count int64, floor int) *Entry {
	t.Helper()
	e, err := New("domain:activity", "2024-01", "", count, QualityVerified, floor, canon.GeoNone, "MONTH", 1)
	require.NoError(t, err)
	return e
}

func TestIndexMergeAddsCounts(t *testing.T) {
	idx := NewIndex()
	idx.Merge(mustEntry(t, 3, 1))
	merged := idx.Merge(mustEntry(t, 4, 1))
	assert.Equal(t, int64(7), merged.Count)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexMergeIsKeyedOnFullTuple(t *testing.T) {
	idx := NewIndex()
	idx.Merge(mustEntry(t, 1, 1))
	other, err := New("domain:activity", "2024-02", "", 1, QualityVerified, 1, canon.GeoNone, "MONTH", 1)
	require.NoError(t, err)
	idx.Merge(other)
	assert.Equal(t, 2, idx.Len())
}

func TestIndexSnapshotExcludesBelowFloor(t *testing.T) {
	idx := NewIndex()
	idx.Merge(mustEntry(t, 2, 10))
	snap := idx.Snapshot()
	assert.Empty(t, snap)

	idx.Merge(mustEntry(t, 20, 10))
	snap = idx.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(22), snap[0].Count)
}

func TestIndexResetClearsEntries(t *testing.T) {
	idx := NewIndex()
	idx.Merge(mustEntry(t, 1, 1))
	idx.Reset()
	assert.Equal(t, 0, idx.Len())
}

func TestIndexWithMetricsRecordsMergesAndSize(t *testing.T) {
	m := metrics.NewODXMetricsWithRegistry(prometheus.NewRegistry())
	idx := NewIndexWithMetrics(m)
	idx.Merge(mustEntry(t, 1, 1))
	idx.Merge(mustEntry(t, 1, 1))
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EntriesMergedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexSize))
}

func TestIndexMergeConcurrentSameKeyIsConsistent(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx.Merge(mustEntry(t, 1, 1))
		}()
	}
	wg.Wait()
	entry, ok := idx.Get(mustEntry(t, 1, 1).Key())
	require.True(t, ok)
	assert.Equal(t, int64(50), entry.Count)
}

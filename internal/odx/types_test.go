/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/errs"
)

func TestNewRejectsPreciseCoordinates(t *testing.T) {
	_, err := New("domain:activity", "2024-01-15", "40.7128,-74.0060", 1, QualityVerified, 1, canon.GeoExact, "DAY", 1)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindODXSafety, e.Kind)
}

func TestNewRejectsForbiddenFacetWord(t *testing.T) {
	_, err := New("email:user@example.com", "2024-01-15", "", 1, QualityVerified, 1, canon.GeoNone, "DAY", 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindODXSafety, errs.KindOf(err))
}

func TestNewRejectsMalformedTimeBucket(t *testing.T) {
	_, err := New("domain:activity", "2024-01-15T10:00:00", "", 1, QualityVerified, 1, canon.GeoNone, "DAY", 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindODXSafety, errs.KindOf(err))
}

func TestNewRejectsPreciseGeoBucketRegardlessOfResolution(t *testing.T) {
	_, err := New("domain:activity", "2024-01-15", "40.712834,-74.006012", 1, QualityVerified, 1, canon.GeoCity, "DAY", 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindODXSafety, errs.KindOf(err))
}

func TestNewAcceptsValidEntry(t *testing.T) {
	for _, tb := range []string{"2024", "2024-W03", "2024-01", "2024-01-15"} {
		e, err := New("domain:activity", tb, "40.71,-74.00", 5, QualityVerified, 1, canon.GeoCity, "MONTH", 1)
		require.NoError(t, err, "time bucket %q should be accepted", tb)
		assert.Equal(t, tb, e.TimeBucket)
	}
}

func TestNewRejectsNegativeCount(t *testing.T) {
	_, err := New("domain:activity", "2024", "", -1, QualityVerified, 1, canon.GeoNone, "YEAR", 1)
	require.Error(t, err)
}

func TestMeetsFloor(t *testing.T) {
	e, err := New("domain:activity", "2024", "", 5, QualityVerified, 10, canon.GeoNone, "YEAR", 1)
	require.NoError(t, err)
	assert.False(t, e.MeetsFloor())

	e2, err := New("domain:activity", "2024", "", 15, QualityVerified, 10, canon.GeoNone, "YEAR", 1)
	require.NoError(t, err)
	assert.True(t, e2.MeetsFloor())
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package labeler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/features"
)

func TestNewBehaviorEvaluatorRegistersDefaults(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)
	assert.Len(t, be.rules, 3)
}

func TestBehaviorEvaluatorHighIntensity(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)

	d := 3 * time.Hour
	e := &canon.Event{
		ID:        "e1",
		Category:  canon.CategoryActivity,
		EventType: "hike",
		Timestamp: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Duration:  &d,
		Attributes: map[string]any{
			"distance_meters": 50000.0,
		},
	}
	f := features.Extract(e)
	labels := be.Evaluate(e, f)

	found := map[string]bool{}
	for _, l := range labels {
		found[l.Category] = true
		assert.Equal(t, "TRUE", l.Value)
	}
	assert.True(t, found["high-intensity"])
	assert.True(t, found["long-duration"])
}

func TestBehaviorEvaluatorNightActivity(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)

	e := &canon.Event{
		ID:        "e2",
		Category:  canon.CategoryActivity,
		EventType: "walk",
		Timestamp: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
	}
	f := features.Extract(e)
	labels := be.Evaluate(e, f)

	var nightActivity, highIntensity bool
	for _, l := range labels {
		if l.Category == "night-activity" {
			nightActivity = true
		}
		if l.Category == "high-intensity" {
			highIntensity = true
		}
	}
	assert.True(t, nightActivity)
	assert.False(t, highIntensity)
}

func TestBehaviorEvaluatorNoMatchYieldsNoLabels(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)

	e := &canon.Event{
		ID:        "e3",
		Category:  canon.CategoryActivity,
		EventType: "ping",
		Timestamp: time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC),
	}
	f := features.Extract(e)
	labels := be.Evaluate(e, f)
	assert.Empty(t, labels)
}

func TestRegisterReplacesExistingRuleByName(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)
	require.NoError(t, be.Register("night-activity", "night-activity", `false`))
	assert.Len(t, be.rules, 3)

	e := &canon.Event{
		ID:        "e4",
		Category:  canon.CategoryActivity,
		EventType: "walk",
		Timestamp: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
	}
	f := features.Extract(e)
	labels := be.Evaluate(e, f)
	for _, l := range labels {
		assert.NotEqual(t, "night-activity", l.Category)
	}
}

func TestRegisterRejectsInvalidExpression(t *testing.T) {
	be, err := NewBehaviorEvaluator()
	require.NoError(t, err)
	err = be.Register("broken", "broken", `not a valid ((( expression`)
	assert.Error(t, err)
}

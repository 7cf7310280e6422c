/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package features

import (
	"regexp"
	"strings"
	"time"

	"github.com/veilmesh/nodecore/internal/canon"
	"github.com/veilmesh/nodecore/internal/ontology"
)

// bonusWeight is the per-signal contribution to quality confidence; five
// signals at this weight sum to exactly 1.0 when all are present (§4.3).
const bonusWeight = 0.2

var forbiddenTagDigitRun = regexp.MustCompile(`\d{4,}`)

// Extract maps a canonical event into its bucketed feature record. It is
// deterministic and total: every well-formed Event produces a Features
// value, never an error.
func Extract(e *canon.Event) *Features {
	return &Features{
		EventID:  e.ID,
		Time:     extractTimeBucket(e),
		Numeric:  extractNumericBuckets(e),
		Clusters: extractClusterFeatures(e),
		Quality:  extractQualityFlags(e),
	}
}

func extractTimeBucket(e *canon.Event) TimeBucket {
	t := e.Timestamp
	_, week := t.ISOWeek()
	dayType := "WEEKDAY"
	if t.Weekday() == time.Sunday || t.Weekday() == time.Saturday {
		dayType = "WEEKEND"
	}
	return TimeBucket{
		HourOfDay:  t.Hour(),
		DayOfWeek:  int(t.Weekday()),
		WeekOfYear: week,
		Month:      int(t.Month()),
		Quarter:    (int(t.Month())-1)/3 + 1,
		TimeOfDay:  timeOfDayBucket(t.Hour()),
		DayType:    dayType,
	}
}

func timeOfDayBucket(hour int) string {
	switch {
	case hour < 6:
		return "NIGHT"
	case hour < 12:
		return "MORNING"
	case hour < 18:
		return "AFTERNOON"
	default:
		return "EVENING"
	}
}

func extractNumericBuckets(e *canon.Event) NumericBuckets {
	return NumericBuckets{
		Duration: durationBucket(e.Duration),
		Count:    countBucket(attributeInt(e.Attributes, "count")),
		Distance: distanceBucket(attributeFloat(e.Attributes, "distance_meters")),
	}
}

func durationBucket(d *time.Duration) DurationBucket {
	if d == nil {
		return DurationNone
	}
	secs := d.Seconds()
	switch {
	case secs < 60:
		return DurationInstant
	case secs < 5*60:
		return DurationVeryShort
	case secs < 15*60:
		return DurationShort
	case secs < 30*60:
		return DurationMedium
	case secs < 60*60:
		return DurationLong
	case secs < 120*60:
		return DurationVeryLong
	default:
		return DurationExtended
	}
}

func countBucket(n int, ok bool) CountBucket {
	if !ok || n <= 0 {
		return CountNone
	}
	switch {
	case n == 1:
		return CountSingle
	case n <= 5:
		return CountFew
	case n <= 10:
		return CountSeveral
	case n <= 50:
		return CountMany
	case n <= 100:
		return CountVeryMany
	default:
		return CountNumerous
	}
}

func distanceBucket(meters float64, ok bool) DistanceBucket {
	if !ok || meters <= 0 {
		return DistanceNone
	}
	switch {
	case meters < 100:
		return DistanceNearby
	case meters < 1000:
		return DistanceShort
	case meters < 5000:
		return DistanceMedium
	case meters < 20000:
		return DistanceLong
	case meters < 100000:
		return DistanceVeryLong
	default:
		return DistanceDistant
	}
}

func extractClusterFeatures(e *canon.Event) ClusterFeatures {
	cf := ClusterFeatures{}
	cat := string(e.Category)

	switch e.Category {
	case canon.CategoryActivity, canon.CategoryTravel:
		v := cat + ":" + e.EventType
		cf.ActivityCluster = &v
	case canon.CategoryMedia, canon.CategoryContent:
		v := cat + ":scene"
		cf.SceneCluster = &v
	case canon.CategorySocial, canon.CategoryCommunication:
		v := cat + ":mood"
		cf.MoodCluster = &v
	}
	if topic, ok := e.Attributes["topic"].(string); ok && topic != "" {
		cf.TopicCluster = &topic
	}

	cf.SafeTags = filterSafeTags(rawTags(e.Attributes))
	return cf
}

func rawTags(attrs map[string]any) []string {
	raw, ok := attrs["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// filterSafeTags drops any tag containing '@', a run of 4+ digits, or a
// forbidden substring (§4.3).
func filterSafeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if strings.Contains(tag, "@") {
			continue
		}
		if forbiddenTagDigitRun.MatchString(tag) {
			continue
		}
		if ontology.ContainsForbiddenWord(tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func extractQualityFlags(e *canon.Event) QualityFlags {
	level := VerificationUnverified
	switch {
	case e.Provenance.SourceKind == "connector":
		level = VerificationVerified
	case e.Provenance.SourceKind == "import" && e.ContentHash != "":
		level = VerificationPartiallyVerified
	}

	completeness := completenessScore(e)

	var confidence float64
	if e.Provenance.SourceKind != "" {
		confidence += bonusWeight
	}
	confidence += bonusWeight * completeness
	if !e.Timestamp.IsZero() {
		confidence += bonusWeight
	}
	if e.ContentHash != "" {
		confidence += bonusWeight
	}
	if e.Provenance.SchemaCurrent {
		confidence += bonusWeight
	}
	if confidence > 1 {
		confidence = 1
	}

	return QualityFlags{
		SourceProvenance: e.Provenance.SourceKind,
		Verification:     level,
		Completeness:     completeness,
		Confidence:       confidence,
	}
}

// completenessScore is the fraction of the event's core fields that are
// populated: category, event type, timestamp, and at least one attribute.
func completenessScore(e *canon.Event) float64 {
	total := 4.0
	have := 0.0
	if e.Category != "" {
		have++
	}
	if e.EventType != "" && e.EventType != "unknown" {
		have++
	}
	if !e.Timestamp.IsZero() {
		have++
	}
	if len(e.Attributes) > 0 {
		have++
	}
	return have / total
}

func attributeInt(attrs map[string]any, key string) (int, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func attributeFloat(attrs map[string]any, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package features

import "github.com/veilmesh/nodecore/internal/ontology"

// ValidateNoLeakage scans an extracted Features record for forbidden keys
// and PII patterns (§4.3). It returns true iff none are found; this is the
// only gate between feature extraction and labeling, so it is checked
// unconditionally, never skipped for "trusted" sources.
func ValidateNoLeakage(f *Features) bool {
	for _, s := range stringFields(f) {
		if ontology.ContainsForbiddenWord(s) || ontology.LooksLikePII(s) {
			return false
		}
	}
	return true
}

// stringFields collects every string-valued field a leak could hide in:
// cluster identifiers and safe tags. Numeric buckets and quality flags are
// closed enumerations / numbers and cannot carry free text.
func stringFields(f *Features) []string {
	var out []string
	if f.Clusters.TopicCluster != nil {
		out = append(out, *f.Clusters.TopicCluster)
	}
	if f.Clusters.MoodCluster != nil {
		out = append(out, *f.Clusters.MoodCluster)
	}
	if f.Clusters.SceneCluster != nil {
		out = append(out, *f.Clusters.SceneCluster)
	}
	if f.Clusters.ActivityCluster != nil {
		out = append(out, *f.Clusters.ActivityCluster)
	}
	out = append(out, f.Clusters.SafeTags...)
	return out
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package ontology holds the normative vocabulary shared by the feature
// extractor, labeler, and ODX index: the forbidden-word substring filter
// and the PII regex bank that must never survive into any label value,
// facet key, or outbound field name.
package ontology

import "strings"

// ForbiddenWords is the normative, case-insensitive substring filter (§4.4).
// No label value, ODX facet, or outbound field name may contain any of
// these as a substring.
var ForbiddenWords = []string{
	"raw", "payload", "content", "text", "email", "phone", "address", "name",
	"ssn", "password", "secret", "token", "body", "message", "creditcard",
	"bankaccount",
}

// ContainsForbiddenWord reports whether s contains any forbidden word as a
// case-insensitive substring.
func ContainsForbiddenWord(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range ForbiddenWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

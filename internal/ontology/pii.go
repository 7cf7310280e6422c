/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package ontology

import "regexp"

// PII regex bank (§4.3 leakage validator): email addresses, runs of ten or
// more digits (phone/account numbers), SSN-like groupings, and credit-
// card-like digit groupings. These patterns intentionally err toward
// over-matching: a false positive drops a safe value, a false negative
// leaks one, and the spec's propagation policy treats leakage as a safety
// failure that is never recovered from locally.
var (
	piiEmailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	piiLongDigitRun      = regexp.MustCompile(`\d{10,}`)
	piiSSNPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	piiCreditCardPattern = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
)

// LooksLikePII reports whether s matches any of the PII patterns.
func LooksLikePII(s string) bool {
	return piiEmailPattern.MatchString(s) ||
		piiLongDigitRun.MatchString(s) ||
		piiSSNPattern.MatchString(s) ||
		piiCreditCardPattern.MatchString(s)
}

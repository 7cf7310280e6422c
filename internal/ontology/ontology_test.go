/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsForbiddenWordCaseInsensitive(t *testing.T) {
	assert.True(t, ContainsForbiddenWord("UserEmailAddress"))
	assert.True(t, ContainsForbiddenWord("raw_payload"))
	assert.False(t, ContainsForbiddenWord("activity_level"))
}

func TestLooksLikePII(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"reach me at jane.doe@example.com", true},
		{"call 5551234567890", true},
		{"ssn 123-45-6789", true},
		{"card 4111 1111 1111 1111", true},
		{"morning walk", false},
		{"bucket MEDIUM", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, LooksLikePII(c.in), c.in)
	}
}

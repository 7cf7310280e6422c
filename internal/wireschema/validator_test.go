/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package wireschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequestRejectsNonObjectPayload(t *testing.T) {
	assert.Error(t, ValidateRequest([]byte(`"not an object"`)))
}

func TestValidateRequestRejectsEmptyPayload(t *testing.T) {
	assert.Error(t, ValidateRequest([]byte(`{}`)))
}

func TestValidatePlanRejectsNonObjectPayload(t *testing.T) {
	assert.Error(t, ValidatePlan([]byte(`[]`)))
}

func TestValidatePlanRejectsEmptyPayload(t *testing.T) {
	assert.Error(t, ValidatePlan([]byte(`{}`)))
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"encoding/json"
	"fmt"

	"github.com/veilmesh/nodecore/internal/wireschema"
)

// DecodePlan validates raw wire bytes against the Query Plan JSON schema
// and, only once that passes, unmarshals them into a Plan. Structural
// validation here is deliberately separate from Validate's semantic
// checks (signature, expiry, allowlisted operators): a plan that fails
// this step is malformed, not merely untrusted.
func DecodePlan(data []byte) (*Plan, error) {
	if err := wireschema.ValidatePlan(data); err != nil {
		return nil, err
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("planvm: decoding plan: %w", err)
	}
	return &p, nil
}

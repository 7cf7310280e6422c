/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"encoding/json"
	"fmt"

	"github.com/veilmesh/nodecore/internal/wireschema"
)

// DecodeRequest validates raw wire bytes against the Data Request JSON
// schema and, only once that passes, unmarshals them into a Request.
// Callers on the transport path should use this instead of a bare
// json.Unmarshal so a structurally malformed payload never reaches
// Receive's signature and policy-stamp checks.
func DecodeRequest(data []byte) (*Request, error) {
	if err := wireschema.ValidateRequest(data); err != nil {
		return nil, err
	}
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("inbox: decoding request: %w", err)
	}
	return &r, nil
}

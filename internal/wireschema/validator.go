/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package wireschema validates the two JSON wire forms a node accepts from
// the outside (the Data Request of §4.6 and the Query Plan of §4.10)
// against embedded JSON Schema documents before either is unmarshaled into
// its Go type. A node has no schema registry to call out to, so unlike a
// server that fetches and caches a published schema over HTTP, these
// schemas are embedded at build time and never fetched from the network.
package wireschema

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed data_request.schema.json query_plan.schema.json
var embedded embed.FS

var (
	requestLoader = mustLoader("data_request.schema.json")
	planLoader    = mustLoader("query_plan.schema.json")
)

func mustLoader(name string) gojsonschema.JSONLoader {
	data, err := embedded.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("wireschema: embedded schema %s missing: %v", name, err))
	}
	return gojsonschema.NewBytesLoader(data)
}

// ValidateRequest checks data against the Data Request wire schema. A
// failure here means the payload is structurally malformed and should
// never reach the Inbox's signature/policy-stamp checks.
func ValidateRequest(data []byte) error {
	return validate(requestLoader, data)
}

// ValidatePlan checks data against the Query Plan wire schema, ahead of
// the Plan VM's semantic validation (signed, unexpired, allowlisted
// operators, PACK_CAPSULE as the terminal step).
func ValidatePlan(data []byte) error {
	return validate(planLoader, data)
}

func validate(schema gojsonschema.JSONLoader, data []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("wireschema: validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return fmt.Errorf("wireschema: malformed payload: %s", strings.Join(msgs, "; "))
	}
	return nil
}

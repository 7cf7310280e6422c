/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit implements the hash-chained, append-only event log (§4.2):
// every notable lifecycle event across the node — a signed contract, an
// executed plan, a shredded capsule — is appended as an Entry whose hash
// commits to the entry before it, so a later verification pass can detect
// tampering or gaps anywhere in the history.
package audit

import "time"

// Event type constants (§4.2 exhaustive list).
const (
	EventPermission        = "PERMISSION"
	EventRequestReceived    = "REQUEST_RECEIVED"
	EventContractSigned    = "CONTRACT_SIGNED"
	EventPlanExecuted      = "PLAN_EXECUTED"
	EventCapsuleCreated    = "CAPSULE_CREATED"
	EventTransferCompleted = "TRANSFER_COMPLETED"
	EventCryptoShred       = "CRYPTO_SHRED"
)

// validEventTypes is the exhaustive set an appended entry must belong to.
var validEventTypes = map[string]bool{
	EventPermission:        true,
	EventRequestReceived:    true,
	EventContractSigned:    true,
	EventPlanExecuted:      true,
	EventCapsuleCreated:    true,
	EventTransferCompleted: true,
	EventCryptoShred:       true,
}

// IsValidEventType reports whether eventType belongs to the normative set.
func IsValidEventType(eventType string) bool {
	return validEventTypes[eventType]
}

// Entry is a single row in the hash chain.
type Entry struct {
	Seq         uint64         `json:"seq"`
	EventType   string         `json:"eventType"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	PrevHash    string         `json:"prevHash"`
	EntryHash   string         `json:"entryHash"`
	NodeID      string         `json:"nodeId"`
}

// QueryOpts filters a Query call.
type QueryOpts struct {
	EventTypes []string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// QueryResult is the result of a Query call.
type QueryResult struct {
	Entries []*Entry `json:"entries"`
	Total   int64    `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// VerificationResult is the outcome of a chain integrity walk.
type VerificationResult struct {
	OK             bool   `json:"ok"`
	EntriesChecked int64  `json:"entriesChecked"`
	FailedSeq      uint64 `json:"failedSeq,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

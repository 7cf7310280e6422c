/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Package planvm validates signed Query Plans and executes their
// allowlisted operators over in-memory data under resource caps, with a
// network-gate that fails closed on any attempt to reach the Egress Gate
// mid-execution.
package planvm

import (
	"time"

	"github.com/veilmesh/nodecore/internal/inbox"
)

// Operator is one of the closed set of operations a plan step may name.
type Operator string

const (
	OpSelect      Operator = "SELECT"
	OpFilter      Operator = "FILTER"
	OpProject     Operator = "PROJECT"
	OpBucketize   Operator = "BUCKETIZE"
	OpAggregate   Operator = "AGGREGATE"
	OpClusterRef  Operator = "CLUSTER_REF"
	OpRedact      Operator = "REDACT"
	OpSample      Operator = "SAMPLE"
	OpExport      Operator = "EXPORT"
	OpPackCapsule Operator = "PACK_CAPSULE"
)

// Step is one entry in a plan's ordered operator chain.
type Step struct {
	Index        int
	Operator     Operator
	Parameters   map[string]any
	InputFields  []string
	OutputFields []string
}

// ResourceLimits are the caps a plan declares for its own execution; the
// VM rejects a plan whose declared limits exceed the configured maxima.
// The declared limits are not measured during the run: the VM cancels a
// run only on the configured per-step and per-plan wall-clock durations.
type ResourceLimits struct {
	CPUMillis      int64
	MemoryBytes    int64
	WallMillis     int64
	BatteryPercent float64
}

// OutputConfig governs what the plan's final PACK_CAPSULE step may
// produce, and whether an EXPORT step is permitted at all.
type OutputConfig struct {
	Mode          inbox.OutputMode
	MaxItems      int
	MaxBytes      int64
	ExportAllowed bool
}

// Plan is the Query Plan wire form (§6): identity, the governing
// contract, its ordered steps, the fields it may touch, output
// configuration, resource limits, and signature.
type Plan struct {
	ID            string
	ContractID    string
	Steps         []Step
	AllowedFields []string
	Output        OutputConfig
	Limits        ResourceLimits
	Signature     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Record is one entry of the keyed map data passed from step to step.
type Record map[string]any

// Dataset is the data a plan operates over, threaded through its steps.
type Dataset []Record

// Clone returns a deep-enough copy of a Dataset: each record is its own
// map, so mutating a cloned record never affects the original.
func (d Dataset) Clone() Dataset {
	out := make(Dataset, len(d))
	for i, rec := range d {
		cp := make(Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// PackedResult is the wrapped output a PACK_CAPSULE step produces: the
// final dataset plus the timestamp and TTL it was packed with. It is not
// yet a Time Capsule (§4.11 / C12 seals it for transport) — PACK_CAPSULE
// only prepares the VM's own output for that sealing step.
type PackedResult struct {
	Data     Dataset
	PackedAt time.Time
	TTL      time.Duration
}

// StepFailure is a structured description of a failure inside one step,
// so a caller never sees a raw panic or unindexed error (§4.10, §7).
type StepFailure struct {
	StepIndex int
	Operator  Operator
	Message   string
	Err       error
}

func (f *StepFailure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *StepFailure) Unwrap() error { return f.Err }

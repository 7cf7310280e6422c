/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/contract"
	"github.com/veilmesh/nodecore/internal/egress"
	"github.com/veilmesh/nodecore/internal/inbox"
	"github.com/veilmesh/nodecore/internal/odx"
	"github.com/veilmesh/nodecore/internal/planvm"
	"github.com/veilmesh/nodecore/internal/sensitivity"
	"github.com/veilmesh/nodecore/internal/transport"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// defaultPlanTTL is how long the plan this pipeline synthesizes for an
// accepted request remains valid, and defaultCapsuleTTL is the TTL handed
// to PACK_CAPSULE and the capsule header it seals into.
const (
	defaultPlanTTL    = 5 * time.Minute
	defaultCapsuleTTL = 15 * time.Minute
)

// requestPipeline drives an accepted Data Request through the rest of the
// request -> consent -> plan -> egress flow: Sensitivity Gate assessment,
// Consent Contract negotiation, a Plan VM run over the ODX index, and a
// policy check at the Egress Gate before the sealed capsule is handed
// back to the transport layer.
//
// This composition root has no interactive consent UI, so it auto-accepts
// every label the requester asked for (subject to the Sensitivity Gate's
// forced defaults) and synthesizes the plan itself (a single SELECT over
// the contract's selected labels followed by PACK_CAPSULE) rather than
// waiting on a separately-submitted, separately-signed plan from the
// requester.
type requestPipeline struct {
	log logr.Logger

	ib             *inbox.Inbox
	gate           *sensitivity.Gate
	contractEngine *contract.Engine
	vm             *planvm.VM
	egressGate     *egress.Gate
	index          *odx.Index

	nodeDID string
	nodeKey *ecdsa.PrivateKey
	cfg     config.Options

	mu          sync.Mutex
	sessionKeys map[string][]byte
}

func newRequestPipeline(
	log logr.Logger,
	ib *inbox.Inbox,
	gate *sensitivity.Gate,
	contractEngine *contract.Engine,
	vm *planvm.VM,
	egressGate *egress.Gate,
	index *odx.Index,
	nodeDID string,
	nodeKey *ecdsa.PrivateKey,
	cfg config.Options,
) *requestPipeline {
	return &requestPipeline{
		log:            log,
		ib:             ib,
		gate:           gate,
		contractEngine: contractEngine,
		vm:             vm,
		egressGate:     egressGate,
		index:          index,
		nodeDID:        nodeDID,
		nodeKey:        nodeKey,
		cfg:            cfg,
		sessionKeys:    make(map[string][]byte),
	}
}

// HandleSubmission decodes a reassembled inbound transfer as a Data
// Request and drives it through the full pipeline. It returns an error
// only for conditions the caller should log loudly; a request that is
// merely rejected somewhere downstream (inbox outcome, contract
// rejection, egress block) is logged here and reported as handled.
func (p *requestPipeline) HandleSubmission(ctx context.Context, payload []byte) error {
	req, err := inbox.DecodeRequest(payload)
	if err != nil {
		return fmt.Errorf("pipeline: decode request: %w", err)
	}

	outcome, err := p.ib.Receive(ctx, req)
	if err != nil {
		return fmt.Errorf("pipeline: inbox receive: %w", err)
	}
	p.log.Info("request received", "requestID", req.ID, "requesterID", req.RequesterID, "outcome", outcome)
	if outcome != inbox.OutcomeAccepted {
		return nil
	}

	assessment := p.gate.Assess(append(append([]string(nil), req.RequiredLabels...), req.OptionalLabels...), req.OutputMode)

	draft, err := p.contractEngine.Build(req, contract.UserChoices{
		SelectedLabels: append(append([]string(nil), req.RequiredLabels...), req.OptionalLabels...),
	})
	if err != nil {
		p.log.Info("contract build rejected", "requestID", req.ID, "error", err.Error())
		return nil
	}
	draft = contract.ApplyForcedDefaults(draft, assessment)

	signed, err := p.contractEngine.Sign(draft)
	if err != nil {
		p.log.Info("contract sign rejected", "requestID", req.ID, "error", err.Error())
		return nil
	}
	p.log.Info("contract signed", "requestID", req.ID, "contractHash", signed.ContractHash, "riskLevel", assessment.RiskLevel)

	// Signing the contract is this auto-pilot's stand-in for the requester
	// accepting the negotiated terms, which is also the point at which the
	// requester's destination becomes one this node has agreed to egress
	// to.
	p.egressGate.Allow(egress.AllowlistEntry{
		Destination: req.RequesterID,
		Purpose:     "capsule-transfer:" + signed.ContractHash,
		Active:      true,
	})

	plan, err := p.buildPlan(signed)
	if err != nil {
		return fmt.Errorf("pipeline: build plan: %w", err)
	}

	data := p.datasetForContract(&signed.Draft)

	result, err := p.vm.Execute(ctx, plan, data)
	if err != nil {
		p.log.Info("plan execution failed", "requestID", req.ID, "planID", plan.ID, "error", err.Error())
		return nil
	}

	capsule, err := p.sealCapsule(plan, signed, req, result)
	if err != nil {
		return fmt.Errorf("pipeline: seal capsule: %w", err)
	}
	capsuleBytes, err := json.Marshal(capsule)
	if err != nil {
		return fmt.Errorf("pipeline: marshal capsule: %w", err)
	}

	sendResult, err := p.egressGate.Send(ctx, egress.Request{
		Destination: req.RequesterID,
		Payload:     capsuleBytes,
		Type:        egress.RequestTypeCapsuleTransfer,
	})
	if err != nil {
		p.log.Info("egress blocked", "requestID", req.ID, "contractHash", signed.ContractHash, "outcome", sendResult.Outcome, "error", err.Error())
		return nil
	}
	p.log.Info("capsule egressed", "requestID", req.ID, "contractHash", signed.ContractHash, "capsuleID", capsule.Header.ID, "bytes", len(capsuleBytes))
	return nil
}

// buildPlan synthesizes the single-SELECT-then-PACK_CAPSULE plan this
// composition root runs on behalf of a signed contract, self-signed by
// the node's own root key since no separate requester-submitted plan
// exists yet for this auto-accepted flow.
func (p *requestPipeline) buildPlan(signed *contract.SignedContract) (*planvm.Plan, error) {
	now := time.Now()
	plan := &planvm.Plan{
		ID:         uuid.New().String(),
		ContractID: signed.ContractHash,
		Steps: []planvm.Step{
			{Index: 0, Operator: planvm.OpSelect, InputFields: []string{"*"}, OutputFields: []string{"*"}},
			{
				Index:        1,
				Operator:     planvm.OpPackCapsule,
				Parameters:   map[string]any{"ttl_seconds": defaultCapsuleTTL.Seconds()},
				InputFields:  []string{"*"},
				OutputFields: []string{"*"},
			},
		},
		AllowedFields: []string{"*"},
		Output: planvm.OutputConfig{
			Mode:          signed.Draft.OutputMode,
			MaxItems:      0, // unbounded: facets below the privacy floor never reach Snapshot
			MaxBytes:      0,
			ExportAllowed: false,
		},
		Limits: planvm.ResourceLimits{
			CPUMillis:      p.cfg.PlanVM.MaxCPUMillis,
			MemoryBytes:    p.cfg.PlanVM.MaxMemoryBytes,
			WallMillis:     p.cfg.PlanVM.MaxWallMillis,
			BatteryPercent: p.cfg.PlanVM.MaxBatteryPercent,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(defaultPlanTTL),
	}

	sig, err := cryptoutil.Sign(p.nodeKey, []byte(plan.ID+plan.ContractID))
	if err != nil {
		return nil, fmt.Errorf("sign plan: %w", err)
	}
	plan.Signature = hex.EncodeToString(sig)
	return plan, nil
}

// datasetForContract builds the Plan VM's dataset from whatever ODX
// entries match the contract's selected labels, filtered to facets that
// already clear their own privacy floor (Index.Snapshot only ever returns
// those).
func (p *requestPipeline) datasetForContract(d *contract.Draft) planvm.Dataset {
	selected := make(map[string]bool, len(d.SelectedLabels))
	for _, l := range d.SelectedLabels {
		selected[l] = true
	}

	var data planvm.Dataset
	for _, e := range p.index.Snapshot() {
		if len(selected) > 0 && !selected[e.FacetKey] {
			continue
		}
		data = append(data, planvm.Record{
			"facet_key":   e.FacetKey,
			"time_bucket": e.TimeBucket,
			"geo_bucket":  e.GeoBucket,
			"count":       e.Count,
			"quality":     string(e.Quality),
		})
	}
	return data
}

// sealCapsule wraps a plan's packed output into a Time Capsule. The
// symmetric session key wrapping the capsule's per-capsule key is kept
// per contract for this pipeline's lifetime rather than derived from a
// requester public key: a Data Request carries only a signature, not a
// resolvable ECDSA key, so there is no peer key for Key & Identity Core's
// pairwise derivation to use here. A deployment that wires a requester
// key directory ahead of the inbox can replace sessionKeyFor with a real
// Core.DeriveSessionKey call without changing anything downstream of it.
func (p *requestPipeline) sealCapsule(plan *planvm.Plan, signed *contract.SignedContract, req *inbox.Request, result *planvm.PackedResult) (*transport.Capsule, error) {
	payload, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal packed result: %w", err)
	}

	sessionKey, err := p.sessionKeyFor(signed.ContractHash)
	if err != nil {
		return nil, err
	}

	header := transport.NewCapsuleHeader(plan.ID, signed.ContractHash, p.nodeDID, req.RequesterID, result.TTL, result.PackedAt)
	return transport.Pack(header, payload, sessionKey, planHash(plan), p.nodeKey)
}

// sessionKeyFor returns the symmetric key wrapping capsule keys for a
// given contract, minting one the first time it is needed.
func (p *requestPipeline) sessionKeyFor(contractHash string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if k, ok := p.sessionKeys[contractHash]; ok {
		return k, nil
	}
	k, err := cryptoutil.RandomKey(32)
	if err != nil {
		return nil, fmt.Errorf("mint session key: %w", err)
	}
	p.sessionKeys[contractHash] = k
	return k, nil
}

// planHash hashes a plan's JSON form, the same way a capsule's proof
// binds to the plan that produced it (§6).
func planHash(plan *planvm.Plan) string {
	b, _ := json.Marshal(plan)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

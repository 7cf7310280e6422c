/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalBytes produces the deterministic UTF-8 byte form of d's fields,
// in lexicographic field-name order, with every collection sorted before
// encoding (§4.8, §6's "Contract canonical bytes"). Serializing the same
// draft twice yields byte-equal output, since every input to the encoding
// — field order, label order, map key order — is itself deterministic.
func CanonicalBytes(d *Draft) []byte {
	fields := canonicalFields(d)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s\n", name, fields[name])
	}
	return []byte(b.String())
}

// ContractHash returns the hex-encoded SHA-256 of d's canonical bytes, the
// stable "integrity hash over the draft" used as the contract hash.
func ContractHash(d *Draft) string {
	sum := sha256.Sum256(CanonicalBytes(d))
	return hex.EncodeToString(sum[:])
}

func canonicalFields(d *Draft) map[string]string {
	selected := append([]string(nil), d.SelectedLabels...)
	sort.Strings(selected)

	restrictions := append([]string(nil), d.Obligation.UsageRestrictions...)
	sort.Strings(restrictions)

	metaKeys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Strings(metaKeys)
	var meta strings.Builder
	for i, k := range metaKeys {
		if i > 0 {
			meta.WriteByte(';')
		}
		fmt.Fprintf(&meta, "%s:%s", k, d.Metadata[k])
	}

	return map[string]string{
		"CompensationAmount":          strconv.FormatFloat(d.Compensation.Amount, 'f', -1, 64),
		"CompensationCurrency":        d.Compensation.Currency,
		"CreatedAt":                   strconv.FormatInt(d.CreatedAt.UnixNano(), 10),
		"EscrowRef":                   d.EscrowRef,
		"ID":                          d.ID,
		"IdentityReveal":              strconv.FormatBool(d.IdentityReveal),
		"Metadata":                    meta.String(),
		"NodeID":                      d.NodeID,
		"Nonce":                       d.Nonce,
		"ObligationDeletionRequired":  strconv.FormatBool(d.Obligation.DeletionRequired),
		"ObligationRetentionDays":     strconv.Itoa(d.Obligation.RetentionDays),
		"ObligationRetentionPolicy":   d.Obligation.RetentionPolicy,
		"ObligationUsageRestrictions": strings.Join(restrictions, ","),
		"OutputMode":                  string(d.OutputMode),
		"RequestID":                   d.RequestID,
		"RequesterID":                 d.RequesterID,
		"SelectedLabels":              strings.Join(selected, ","),
		"TTL":                         strconv.FormatInt(int64(d.TTL), 10),
		"WindowEnd":                   strconv.FormatInt(d.Window.End.UnixNano(), 10),
		"WindowStart":                 strconv.FormatInt(d.Window.Start.UnixNano(), 10),
	}
}

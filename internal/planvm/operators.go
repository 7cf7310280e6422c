/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package planvm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	mrand "math/rand"
	"strconv"
	"strings"
)

// execOperator dispatches a single step's operator over data, returning
// the transformed dataset. PACK_CAPSULE is handled by the VM directly
// since it terminates the chain with a non-Dataset result.
func execOperator(step Step, data Dataset, rng *mrand.Rand) (Dataset, error) {
	switch step.Operator {
	case OpSelect:
		return opSelect(step, data)
	case OpFilter:
		return opFilter(step, data)
	case OpProject:
		return opProject(step, data)
	case OpBucketize:
		return opBucketize(step, data)
	case OpAggregate:
		return opAggregate(step, data)
	case OpClusterRef:
		return opClusterRef(step, data)
	case OpRedact:
		return opRedact(step, data)
	case OpSample:
		return opSample(step, data, rng)
	case OpExport:
		return opExport(step, data)
	default:
		return nil, fmt.Errorf("planvm: operator %s has no execution handler", step.Operator)
	}
}

// opSelect retains keys matching the criteria pattern ("*" matches all).
func opSelect(step Step, data Dataset) (Dataset, error) {
	pattern, _ := step.Parameters["criteria"].(string)
	if pattern == "" {
		pattern = "*"
	}
	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		kept := make(Record)
		for k, v := range rec {
			if pattern == "*" || matchesPattern(pattern, k) {
				kept[k] = v
			}
		}
		out = append(out, kept)
	}
	return out, nil
}

func matchesPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

// opFilter retains entries whose key=field and/or value=value match when
// specified; either constraint alone is sufficient to specify the filter.
func opFilter(step Step, data Dataset) (Dataset, error) {
	field, hasField := step.Parameters["field"].(string)
	value, hasValue := step.Parameters["value"]

	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		if hasField {
			v, ok := rec[field]
			if !ok {
				continue
			}
			if hasValue && fmt.Sprint(v) != fmt.Sprint(value) {
				continue
			}
		} else if hasValue {
			found := false
			for _, v := range rec {
				if fmt.Sprint(v) == fmt.Sprint(value) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// opProject retains only output-fields ∩ allowed-fields ∩ keys. The
// allowed-fields intersection was already enforced at validation time, so
// here it retains output-fields ∩ keys per record.
func opProject(step Step, data Dataset) (Dataset, error) {
	keep := make(map[string]bool, len(step.OutputFields))
	for _, f := range step.OutputFields {
		keep[f] = true
	}

	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		projected := make(Record)
		for k, v := range rec {
			if keep[k] {
				projected[k] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

// opBucketize adds field_bucket = "lower-upper" for a numeric field,
// where lower = floor(v/size)*size and upper = lower+size.
func opBucketize(step Step, data Dataset) (Dataset, error) {
	field, _ := step.Parameters["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("planvm: BUCKETIZE requires a field parameter")
	}
	size, ok := toFloat64(step.Parameters["bucket_size"])
	if !ok || size < 1 {
		return nil, fmt.Errorf("planvm: BUCKETIZE requires bucket_size >= 1")
	}

	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		cp := cloneRecord(rec)
		if v, ok := toFloat64(rec[field]); ok {
			lower := math.Floor(v/size) * size
			upper := lower + size
			cp[field+"_bucket"] = fmt.Sprintf("%s-%s", formatNum(lower), formatNum(upper))
		}
		out = append(out, cp)
	}
	return out, nil
}

// opAggregate reduces the whole dataset to a single record carrying
// _aggregate_type and an _aggregate_value field. sum/avg/min/max
// consider only numeric values of the named field.
func opAggregate(step Step, data Dataset) (Dataset, error) {
	op, _ := step.Parameters["op"].(string)
	field, _ := step.Parameters["field"].(string)

	result := Record{"_aggregate_type": op}

	switch op {
	case "count":
		result["_aggregate_value"] = len(data)
	case "sum", "avg", "min", "max":
		values := numericValues(data, field)
		if len(values) == 0 {
			result["_aggregate_value"] = nil
			break
		}
		switch op {
		case "sum":
			result["_aggregate_value"] = sumOf(values)
		case "avg":
			result["_aggregate_value"] = sumOf(values) / float64(len(values))
		case "min":
			result["_aggregate_value"] = minOf(values)
		case "max":
			result["_aggregate_value"] = maxOf(values)
		}
	default:
		return nil, fmt.Errorf("planvm: unknown AGGREGATE op %q", op)
	}

	return Dataset{result}, nil
}

func numericValues(data Dataset, field string) []float64 {
	vals := make([]float64, 0, len(data))
	for _, rec := range data {
		if v, ok := toFloat64(rec[field]); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func sumOf(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// opClusterRef replaces a field's value (or every field's value, if none
// is named) with "cluster:" plus a stable hash; the raw value never
// appears in the output.
func opClusterRef(step Step, data Dataset) (Dataset, error) {
	field, _ := step.Parameters["field"].(string)

	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		cp := cloneRecord(rec)
		if field != "" {
			if v, ok := cp[field]; ok {
				cp[field] = clusterHash(v)
			}
		} else {
			for k, v := range cp {
				cp[k] = clusterHash(v)
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func clusterHash(v any) string {
	sum := sha256.Sum256([]byte(fmt.Sprint(v)))
	return "cluster:" + hex.EncodeToString(sum[:8])
}

// opRedact replaces the values of the step's input fields with
// "[REDACTED]" in every record.
func opRedact(step Step, data Dataset) (Dataset, error) {
	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		cp := cloneRecord(rec)
		for _, f := range step.InputFields {
			if _, ok := cp[f]; ok {
				cp[f] = "[REDACTED]"
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

// opSample retains each entry independently with probability rate
// (Bernoulli retention); rng is the VM's random source, which WithRand can
// replace with a seeded one for reproducible tests.
func opSample(step Step, data Dataset, rng *mrand.Rand) (Dataset, error) {
	rate, ok := toFloat64(step.Parameters["rate"])
	if !ok || rate <= 0 || rate > 1 {
		return nil, fmt.Errorf("planvm: SAMPLE requires rate in (0, 1]")
	}
	if rate == 1 {
		return data, nil
	}

	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		if rng.Float64() < rate {
			out = append(out, rec)
		}
	}
	return out, nil
}

// opExport tags the dataset with _export_requested; the caller (the VM)
// is responsible for rejecting this step when the governing contract's
// output mode forbids export before execOperator is ever invoked.
func opExport(step Step, data Dataset) (Dataset, error) {
	format, _ := step.Parameters["format"].(string)
	out := make(Dataset, 0, len(data))
	for _, rec := range data {
		cp := cloneRecord(rec)
		cp["_export_requested"] = format
		out = append(out, cp)
	}
	return out, nil
}

func cloneRecord(rec Record) Record {
	cp := make(Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatNum(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

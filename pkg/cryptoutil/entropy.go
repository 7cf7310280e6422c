package cryptoutil

import (
	"bytes"
	"math"
)

// ShannonEntropy computes the Shannon entropy of data in bits per byte,
// the metric the Egress Gate (§4.10) and the capsule verifier (§4.11) use
// to tell ciphertext from structured or plain payloads. An empty slice
// has zero entropy.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// LooksLikeMetadata applies the heuristic from §4.10: payloads that open
// with a JSON delimiter and contain a key/value separator (`":` or `=`)
// are presumed to be structured metadata rather than raw content. An empty
// payload counts as metadata. Payload length is not checked here.
func LooksLikeMetadata(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	first := data[0]
	if first != '{' && first != '[' {
		return false
	}
	return bytes.Contains(data, []byte(`":`)) || bytes.ContainsRune(data, '=')
}

/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package egress

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/veilmesh/nodecore/internal/config"
	"github.com/veilmesh/nodecore/internal/errs"
	"github.com/veilmesh/nodecore/internal/ontology"
	"github.com/veilmesh/nodecore/internal/planvm"
	"github.com/veilmesh/nodecore/pkg/cryptoutil"
	"github.com/veilmesh/nodecore/pkg/metrics"
)

// metadataPayloadMax is the byte length below which a payload is
// considered for the length+shape METADATA_ONLY heuristic before falling
// back to entropy-based classification (§4.10).
const metadataPayloadMax = 28

// Gate is the Egress Gate (§4.10): every outbound byte passes through
// Send, which fails closed on any rule it cannot affirmatively clear.
type Gate struct {
	mu        sync.Mutex
	enabled   bool
	allowlist map[string]AllowlistEntry
	limiters  map[string]*rate.Limiter
	attempts  []Attempt

	cfg     config.EgressOptions
	metrics *metrics.EgressMetrics
	now     func() time.Time
}

// Option configures a Gate at construction.
type Option func(*Gate)

// WithMetrics wires Prometheus metrics into the Gate.
func WithMetrics(m *metrics.EgressMetrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock overrides the Gate's notion of "now", for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New builds a Gate in the enabled state with an empty allowlist.
func New(cfg config.EgressOptions, opts ...Option) *Gate {
	g := &Gate{
		enabled:   true,
		allowlist: make(map[string]AllowlistEntry),
		limiters:  make(map[string]*rate.Limiter),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetEnabled toggles the gate. Disabling it causes every subsequent Send
// to fail closed with OutcomeGateDisabled (rule 1).
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Allow adds or updates an allowlist entry. A destination is normalized
// the same way Send normalizes it, so lookups at send time always match.
func (g *Gate) Allow(entry AllowlistEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry.Destination = normalizeDestination(entry.Destination)
	g.allowlist[entry.Destination] = entry
}

// Send runs req through every gate rule in order and reports the outcome.
// Every call, blocked or not, is appended to the in-process attempt log.
func (g *Gate) Send(ctx context.Context, req Request) (Result, error) {
	result, err := g.send(ctx, req)
	if g.metrics != nil {
		if result.Outcome == OutcomeSent {
			g.metrics.RecordBytes(string(result.Classification), len(req.Payload))
		} else {
			g.metrics.RecordBlocked(string(result.Outcome))
		}
	}
	return result, err
}

func (g *Gate) send(ctx context.Context, req Request) (Result, error) {
	dest := normalizeDestination(req.Destination)

	if planvm.NetworkBlocked(ctx) && req.Type != RequestTypeMetadata {
		return g.record(dest, OutcomeNetworkBlocked, "", len(req.Payload),
			errs.New(errs.KindNetworkBlocked, "network gate is installed for this plan execution"))
	}

	g.mu.Lock()
	enabled := g.enabled
	g.mu.Unlock()
	if !enabled {
		return g.record(dest, OutcomeGateDisabled, "", len(req.Payload),
			errs.New(errs.KindUnauthorized, "egress gate is disabled"))
	}

	g.mu.Lock()
	entry, known := g.allowlist[dest]
	g.mu.Unlock()
	if !known || !entry.Active {
		return g.record(dest, OutcomeUnknownDestination, "", len(req.Payload),
			errs.New(errs.KindUnknownDestination, "destination is not in the allowlist"))
	}

	if !g.allow(dest) {
		return g.record(dest, OutcomeRateLimited, "", len(req.Payload),
			errs.New(errs.KindRateLimited, "egress rate limit exceeded for this destination"))
	}

	class := classify(req.Payload, g.cfg.MetadataEntropyThreshold)

	if class == ClassRawPayload {
		return g.record(dest, OutcomeRawPayloadEgress, class, len(req.Payload),
			errs.New(errs.KindRawPayloadEgress, "raw payload may not leave the device"))
	}

	if class != ClassCiphertextCapsule && ontology.LooksLikePII(string(req.Payload)) {
		return g.record(dest, OutcomeForbiddenPattern, class, len(req.Payload),
			errs.New(errs.KindForbiddenPattern, "payload matches a forbidden PII pattern"))
	}

	result := Result{
		Outcome:        OutcomeSent,
		Classification: class,
		Destination:    dest,
		MatchedPurpose: entry.Purpose,
		SentAt:         g.now(),
	}
	g.logAttempt(dest, OutcomeSent, class, len(req.Payload))
	return result, nil
}

// record logs a blocked attempt and returns its Result/error pair.
func (g *Gate) record(dest string, outcome Outcome, class Classification, payloadSize int, err error) (Result, error) {
	g.logAttempt(dest, outcome, class, payloadSize)
	return Result{Outcome: outcome, Classification: class, Destination: dest}, err
}

func (g *Gate) logAttempt(dest string, outcome Outcome, class Classification, payloadSize int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = append(g.attempts, Attempt{
		ID:             uuid.New().String(),
		Destination:    dest,
		Reason:         outcome,
		PayloadSize:    payloadSize,
		Classification: class,
		Timestamp:      g.now(),
	})
}

// allow consults (creating if necessary) the per-destination token bucket.
// A zero RateLimitPerSecond disables rate limiting entirely.
func (g *Gate) allow(dest string) bool {
	if g.cfg.RateLimitPerSecond <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[dest]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(g.cfg.RateLimitPerSecond), g.cfg.RateLimitBurst)
		g.limiters[dest] = lim
	}
	return lim.Allow()
}

// Attempts returns a copy of the in-process egress-attempt log.
func (g *Gate) Attempts() []Attempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Attempt, len(g.attempts))
	copy(out, g.attempts)
	return out
}

// Stats summarizes lifetime gate activity.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	blocked := 0
	for _, a := range g.attempts {
		if a.Reason != OutcomeSent {
			blocked++
		}
	}
	return Stats{
		TotalAttempts: len(g.attempts),
		TotalBlocked:  blocked,
		AllowlistSize: len(g.allowlist),
	}
}

// classify implements §4.10 rule 3: empty payloads and small
// metadata-shaped payloads are METADATA_ONLY without inspecting entropy;
// everything else is scored by Shannon entropy, with high-entropy bytes
// treated as an opaque capsule and everything remaining as raw content.
func classify(payload []byte, entropyThreshold float64) Classification {
	if entropyThreshold <= 0 {
		entropyThreshold = 7.0
	}
	if len(payload) == 0 {
		return ClassMetadataOnly
	}
	if len(payload) < metadataPayloadMax {
		if cryptoutil.LooksLikeMetadata(payload) {
			return ClassMetadataOnly
		}
		return ClassRawPayload
	}
	if cryptoutil.ShannonEntropy(payload) > entropyThreshold {
		return ClassCiphertextCapsule
	}
	if cryptoutil.LooksLikeMetadata(payload) {
		return ClassMetadataOnly
	}
	return ClassRawPayload
}

// normalizeDestination lowercases dest and strips any scheme and path, so
// "https://Relay.Example.com/v1/ingest" and "relay.example.com" match the
// same allowlist entry.
func normalizeDestination(dest string) string {
	dest = strings.ToLower(strings.TrimSpace(dest))
	if u, err := url.Parse(dest); err == nil && u.Host != "" {
		return u.Host
	}
	dest = strings.TrimPrefix(dest, "https://")
	dest = strings.TrimPrefix(dest, "http://")
	dest = strings.TrimPrefix(dest, "wss://")
	dest = strings.TrimPrefix(dest, "ws://")
	if i := strings.IndexByte(dest, '/'); i >= 0 {
		dest = dest[:i]
	}
	return dest
}

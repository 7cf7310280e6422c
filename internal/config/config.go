/*
Copyright 2025.

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

// Package config provides configuration management for the node daemon.
package config

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Options holds all configuration for a running node, composed from one
// sub-struct per component so each can be validated and defaulted
// independently.
type Options struct {
	// MetricsAddr is the address the Prometheus metrics endpoint binds to.
	MetricsAddr string

	// ProbeAddr is the address the liveness/readiness probe endpoint binds to.
	ProbeAddr string

	// SecureMetrics indicates if the metrics endpoint should be served via HTTPS.
	SecureMetrics bool

	// EnableHTTP2 enables HTTP/2 for the metrics and transport servers.
	EnableHTTP2 bool

	MetricsCertPath string
	MetricsCertName string
	MetricsCertKey  string

	KeyCore   KeyCoreOptions
	Inbox     InboxOptions
	Contract  ContractOptions
	PlanVM    PlanVMOptions
	Egress    EgressOptions
	Transport TransportOptions
	Audit     AuditOptions
	Canon     CanonOptions
	ODX       ODXOptions
}

// ODXOptions configures the ODX Index (§4.5).
type ODXOptions struct {
	// PostgresDSN is the connection string for the persisted facet index.
	PostgresDSN string

	// DefaultPrivacyFloor is carried in the configuration but no component
	// reads it: the labeler and the ODX builder apply their own built-in
	// floor of 10 to categories with no more specific floor.
	DefaultPrivacyFloor int
}

// CanonOptions configures the Canonical Event Model's ingestion topic (§4.3).
type CanonOptions struct {
	// KafkaBrokers, when non-empty, backs connector-sync ingestion with a
	// real Kafka cluster; empty runs normalization in-process without a
	// broker (suitable for a single-node phone deployment).
	KafkaBrokers []string

	// IngestTopic is the internal topic raw connector records are
	// published to before normalization consumes them.
	IngestTopic string
}

// KeyCoreOptions configures the Key & Identity Core (§4.1).
type KeyCoreOptions struct {
	// KeyvaultProviderType selects the envelope-encryption backend, one of
	// "local-dev-enclave", "aws-kms", "gcp-kms", "azure-keyvault".
	KeyvaultProviderType string

	// PairwiseRotationInterval is how often a pairwise DID is rotated per
	// requester by default.
	PairwiseRotationInterval time.Duration

	// SessionKeyTTL is how long a derived session key remains valid.
	SessionKeyTTL time.Duration

	// NodeIdentifierRotationInterval is how often the node's network-facing
	// identifier is rotated independent of its root identity.
	NodeIdentifierRotationInterval time.Duration
}

// InboxOptions configures the Request Inbox (§4.7).
type InboxOptions struct {
	// Capacity bounds the number of pending requests held at once.
	Capacity int

	// SeenNonceTTL bounds how long a seen request identity is remembered
	// for replay detection before it may be evicted.
	SeenNonceTTL time.Duration

	// RedisAddr, when set, backs the seen-nonce set with Redis so multiple
	// inbox instances share replay state; empty uses an in-process store.
	// The pending set and its capacity count are always held in process.
	RedisAddr string
}

// ContractOptions configures the Consent Contract Engine (§4.9).
type ContractOptions struct {
	// DefaultTTL is applied to a draft contract when the request omits one.
	DefaultTTL time.Duration

	// RequireCountersignature is carried in the configuration but no
	// component reads it: a DS_SIGNED contract backs a plan whatever its
	// value.
	RequireCountersignature bool
}

// PlanVMOptions configures the Plan Validator & VM (§4.10).
type PlanVMOptions struct {
	// MaxSteps bounds the number of operators a single plan may chain.
	MaxSteps int

	// MaxStepDuration bounds the wall-clock time a single operator may run.
	MaxStepDuration time.Duration

	// MaxPlanDuration bounds the wall-clock time a whole plan may run.
	MaxPlanDuration time.Duration

	// AllowedOperators is the operator allowlist; a plan referencing any
	// operator outside this set is rejected at validation time.
	AllowedOperators []string

	// MaxCPUMillis, MaxMemoryBytes, MaxWallMillis, and MaxBatteryPercent are
	// the hard ceilings a plan's declared resource limits may not exceed;
	// a plan declaring limits above these maxima is rejected at validation
	// time, distinct from the resource monitor's execution-time cancellation.
	MaxCPUMillis      int64
	MaxMemoryBytes    int64
	MaxWallMillis     int64
	MaxBatteryPercent float64
}

// EgressOptions configures the Egress Gate (§4.11).
type EgressOptions struct {
	// RateLimitPerSecond bounds the number of sends per second per
	// destination; each send spends one token, whatever its payload size.
	// Zero disables rate limiting.
	RateLimitPerSecond float64

	// RateLimitBurst is the token bucket burst size, in sends.
	RateLimitBurst int

	// MetadataEntropyThreshold is the Shannon entropy (bits/byte) above
	// which a payload of 28 bytes or more is classified as a ciphertext
	// capsule; shorter payloads are classified by shape alone.
	MetadataEntropyThreshold float64
}

// TransportOptions configures Transport & Capsule (§4.12).
type TransportOptions struct {
	// ListenAddr is the address the websocket transport listens on.
	ListenAddr string

	// CapsuleTTL is carried in the configuration and Validate requires it
	// to be positive, but no component reads it; the request pipeline gives
	// PACK_CAPSULE a fixed TTL of 15 minutes.
	CapsuleTTL time.Duration

	// BreakerMaxRequests is the gobreaker half-open trial request count.
	BreakerMaxRequests uint32

	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration

	// ChunkBytes is carried in the configuration but no component reads
	// it; NewTransfer takes its chunk size as an argument.
	ChunkBytes int
}

// AuditOptions configures the Audit Log (§4.2).
type AuditOptions struct {
	// PostgresDSN is the connection string for the hash-chained audit store.
	PostgresDSN string

	// ParquetExportDir is carried in the configuration but no component
	// reads it; no periodic parquet export runs. Parquet bytes come only
	// from an explicit Logger.ExportParquet call.
	ParquetExportDir string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MetricsAddr:     "0",
		ProbeAddr:       ":8081",
		SecureMetrics:   true,
		EnableHTTP2:     false,
		MetricsCertName: "tls.crt",
		MetricsCertKey:  "tls.key",
		KeyCore: KeyCoreOptions{
			KeyvaultProviderType:           "local-dev-enclave",
			PairwiseRotationInterval:       30 * 24 * time.Hour,
			SessionKeyTTL:                  24 * time.Hour,
			NodeIdentifierRotationInterval: 24 * time.Hour,
		},
		Inbox: InboxOptions{
			Capacity:     1024,
			SeenNonceTTL: 7 * 24 * time.Hour,
		},
		Contract: ContractOptions{
			DefaultTTL:              30 * 24 * time.Hour,
			RequireCountersignature: false,
		},
		PlanVM: PlanVMOptions{
			MaxSteps:        32,
			MaxStepDuration: 5 * time.Second,
			MaxPlanDuration: 30 * time.Second,
			AllowedOperators: []string{
				"SELECT", "FILTER", "PROJECT", "BUCKETIZE", "AGGREGATE",
				"CLUSTER_REF", "REDACT", "SAMPLE", "EXPORT", "PACK_CAPSULE",
			},
			MaxCPUMillis:      60_000,
			MaxMemoryBytes:    100 << 20,
			MaxWallMillis:     120_000,
			MaxBatteryPercent: 10,
		},
		Egress: EgressOptions{
			RateLimitPerSecond:       1 << 20, // sends per second
			RateLimitBurst:           1 << 21,
			MetadataEntropyThreshold: 6.5,
		},
		Transport: TransportOptions{
			ListenAddr:         ":7443",
			CapsuleTTL:         72 * time.Hour,
			BreakerMaxRequests: 3,
			BreakerTimeout:     30 * time.Second,
			ChunkBytes:         64 * 1024,
		},
		Audit: AuditOptions{},
		Canon: CanonOptions{
			IngestTopic: "nodecore.ingest.raw-events",
		},
		ODX: ODXOptions{
			DefaultPrivacyFloor: 10,
		},
	}
}

// Validate checks if the Options are structurally sound.
func (o *Options) Validate() error {
	if o.KeyCore.SessionKeyTTL <= 0 {
		return fmt.Errorf("config: KeyCore.SessionKeyTTL must be positive")
	}
	if o.Inbox.Capacity <= 0 {
		return fmt.Errorf("config: Inbox.Capacity must be positive")
	}
	if o.PlanVM.MaxSteps <= 0 {
		return fmt.Errorf("config: PlanVM.MaxSteps must be positive")
	}
	if len(o.PlanVM.AllowedOperators) == 0 {
		return fmt.Errorf("config: PlanVM.AllowedOperators must not be empty")
	}
	if o.Egress.RateLimitPerSecond <= 0 {
		return fmt.Errorf("config: Egress.RateLimitPerSecond must be positive")
	}
	if o.Egress.MetadataEntropyThreshold <= 0 {
		return fmt.Errorf("config: Egress.MetadataEntropyThreshold must be positive")
	}
	if o.Transport.CapsuleTTL <= 0 {
		return fmt.Errorf("config: Transport.CapsuleTTL must be positive")
	}
	return nil
}

// TLSConfig holds TLS-related configuration.
type TLSConfig struct {
	CertDir  string
	CertName string
	KeyName  string
}

// IsConfigured returns true if the TLS config has a cert directory specified.
func (t *TLSConfig) IsConfigured() bool {
	return len(t.CertDir) > 0
}

// GetMetricsTLSConfig returns TLS configuration for the metrics server.
func (o *Options) GetMetricsTLSConfig() TLSConfig {
	return TLSConfig{
		CertDir:  o.MetricsCertPath,
		CertName: o.MetricsCertName,
		KeyName:  o.MetricsCertKey,
	}
}

// DisableHTTP2TLSConfig returns a TLS config modifier that disables HTTP/2.
// This is recommended due to HTTP/2 vulnerabilities (CVE-2023-44487, CVE-2023-39325).
func DisableHTTP2TLSConfig() func(*tls.Config) {
	return func(c *tls.Config) {
		c.NextProtos = []string{"http/1.1"}
	}
}

// BuildTLSOptions returns TLS options based on the configuration.
func (o *Options) BuildTLSOptions() []func(*tls.Config) {
	var tlsOpts []func(*tls.Config)
	if !o.EnableHTTP2 {
		tlsOpts = append(tlsOpts, DisableHTTP2TLSConfig())
	}
	return tlsOpts
}

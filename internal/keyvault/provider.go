// Package keyvault implements the secure-storage abstraction behind the
// Key & Identity Core (§4.1): a place to persist key material that reports
// whether it is hardware-backed, and — when it isn't — a KMS envelope
// provider to encrypt that material at rest. Grounded on the teacher's
// ee/pkg/encryption Provider/factory split, generalized from "tenant data
// encryption" to "root and pairwise key custody".
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for envelope-encryption operations.
var (
	ErrProviderNotImplemented = errors.New("keyvault: KMS provider not implemented")
	ErrKeyNotFound            = errors.New("keyvault: key not found")
	ErrEncryptionFailed       = errors.New("keyvault: envelope encryption failed")
	ErrDecryptionFailed       = errors.New("keyvault: envelope decryption failed")
	ErrRotationFailed         = errors.New("keyvault: key rotation failed")
)

// EncryptOutput holds the result of an envelope-encryption operation.
type EncryptOutput struct {
	Ciphertext []byte
	KeyID      string
	KeyVersion string
	Algorithm  string
}

// KeyMetadata describes the state of a KMS-managed wrapping key.
type KeyMetadata struct {
	KeyID      string
	KeyVersion string
	Algorithm  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Enabled    bool
}

// RotationResult holds the outcome of a wrapping-key rotation.
type RotationResult struct {
	PreviousKeyVersion string
	NewKeyVersion      string
	RotatedAt          time.Time
}

// EnvelopeProvider is a KMS-backed envelope encryption service: it never
// exposes the wrapping key itself, only encrypt/decrypt operations over
// it. The Key Core uses it to wrap root and pairwise private key material
// when the device has no hardware-backed secure enclave available.
type EnvelopeProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) (*EncryptOutput, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	KeyMetadata(ctx context.Context) (*KeyMetadata, error)
	RotateKey(ctx context.Context) (*RotationResult, error)
	Close() error
}

// ProviderType identifies a concrete EnvelopeProvider backend.
type ProviderType string

const (
	ProviderAWSKMS          ProviderType = "aws-kms"
	ProviderGCPKMS          ProviderType = "gcp-kms"
	ProviderAzureKeyVault   ProviderType = "azure-keyvault"
	ProviderLocalDevEnclave ProviderType = "local-dev-enclave"
)

// ProviderConfig configures a NewProvider call. Only the fields relevant
// to the selected ProviderType need to be populated.
type ProviderConfig struct {
	ProviderType ProviderType

	// AWS KMS. AccessKeyID/SecretAccessKey are optional — when either is
	// empty the AWS SDK's default credential chain (environment,
	// instance/task role, shared config file) is used instead.
	AWSKeyID           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// GCP KMS.
	GCPKeyName string // projects/.../locations/.../keyRings/.../cryptoKeys/...

	// Azure Key Vault.
	AzureVaultURL string
	AzureKeyName  string
}

// NewProvider constructs an EnvelopeProvider from cfg, grounded on the
// teacher's encryption.NewProvider factory dispatch.
func NewProvider(ctx context.Context, cfg ProviderConfig) (EnvelopeProvider, error) {
	switch cfg.ProviderType {
	case ProviderAWSKMS:
		return newAWSKMSProvider(ctx, cfg)
	case ProviderGCPKMS:
		return newGCPKMSProvider(ctx, cfg)
	case ProviderAzureKeyVault:
		return newAzureKeyVaultProvider(ctx, cfg)
	case ProviderLocalDevEnclave, "":
		return newLocalEnclaveProvider(), nil
	default:
		return nil, fmt.Errorf("keyvault: unknown provider type %q", cfg.ProviderType)
	}
}

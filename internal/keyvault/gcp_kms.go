package keyvault

import (
	"context"
	"fmt"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
)

// gcpKMSProvider wraps key material using a GCP Cloud KMS CryptoKey.
// Grounded on the teacher's encryption.gcpKMSProvider: resolve the client
// from ambient application-default credentials, address the key by its
// fully-qualified resource name.
type gcpKMSProvider struct {
	client  *kms.KeyManagementClient
	keyName string
	created time.Time
}

func newGCPKMSProvider(ctx context.Context, cfg ProviderConfig) (*gcpKMSProvider, error) {
	if cfg.GCPKeyName == "" {
		return nil, fmt.Errorf("%w: GCPKeyName is required", ErrProviderNotImplemented)
	}
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new GCP KMS client: %w", err)
	}
	return &gcpKMSProvider{
		client:  client,
		keyName: cfg.GCPKeyName,
		created: time.Now(),
	}, nil
}

func (p *gcpKMSProvider) Encrypt(ctx context.Context, plaintext []byte) (*EncryptOutput, error) {
	resp, err := p.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      p.keyName,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return &EncryptOutput{
		Ciphertext: resp.Ciphertext,
		KeyID:      p.keyName,
		KeyVersion: resp.ProtectionLevel.String(),
		Algorithm:  "GOOGLE_SYMMETRIC_ENCRYPTION",
	}, nil
}

func (p *gcpKMSProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := p.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       p.keyName,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return resp.Plaintext, nil
}

func (p *gcpKMSProvider) KeyMetadata(ctx context.Context) (*KeyMetadata, error) {
	key, err := p.client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: p.keyName})
	if err != nil {
		return nil, fmt.Errorf("keyvault: get GCP crypto key: %w", err)
	}
	version := "primary"
	if key.Primary != nil {
		version = key.Primary.Name
	}
	return &KeyMetadata{
		KeyID:      p.keyName,
		KeyVersion: version,
		Algorithm:  "GOOGLE_SYMMETRIC_ENCRYPTION",
		CreatedAt:  p.created,
		Enabled:    true,
	}, nil
}

func (p *gcpKMSProvider) RotateKey(ctx context.Context) (*RotationResult, error) {
	before, err := p.client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: p.keyName})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	prevVersion := "unknown"
	if before.Primary != nil {
		prevVersion = before.Primary.Name
	}
	version, err := p.client.CreateCryptoKeyVersion(ctx, &kmspb.CreateCryptoKeyVersionRequest{
		Parent:           p.keyName,
		CryptoKeyVersion: &kmspb.CryptoKeyVersion{},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	if _, err := p.client.UpdateCryptoKeyPrimaryVersion(ctx, &kmspb.UpdateCryptoKeyPrimaryVersionRequest{
		Name:               p.keyName,
		CryptoKeyVersionId: version.Name,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	return &RotationResult{
		PreviousKeyVersion: prevVersion,
		NewKeyVersion:      version.Name,
		RotatedAt:          time.Now(),
	}, nil
}

func (p *gcpKMSProvider) Close() error { return p.client.Close() }

package keyvault

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

// azureKeyVaultProvider wraps key material using an RSA or symmetric key
// held in Azure Key Vault. Grounded on the teacher's
// encryption.azureKeyVaultProvider: DefaultAzureCredential, vault-URL +
// key-name addressing, RSA-OAEP-256 for wrap/unwrap.
type azureKeyVaultProvider struct {
	client  *azkeys.Client
	keyName string
	created time.Time
}

func newAzureKeyVaultProvider(_ context.Context, cfg ProviderConfig) (*azureKeyVaultProvider, error) {
	if cfg.AzureVaultURL == "" || cfg.AzureKeyName == "" {
		return nil, fmt.Errorf("%w: AzureVaultURL and AzureKeyName are required", ErrProviderNotImplemented)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: azure default credential: %w", err)
	}
	client, err := azkeys.NewClient(cfg.AzureVaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: new azure keyvault client: %w", err)
	}
	return &azureKeyVaultProvider{
		client:  client,
		keyName: cfg.AzureKeyName,
		created: time.Now(),
	}, nil
}

func (p *azureKeyVaultProvider) Encrypt(ctx context.Context, plaintext []byte) (*EncryptOutput, error) {
	resp, err := p.client.Encrypt(ctx, p.keyName, "", azkeys.KeyOperationParameters{
		Algorithm: to.Ptr(azkeys.EncryptionAlgorithmRSAOAEP256),
		Value:     plaintext,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return &EncryptOutput{
		Ciphertext: resp.Result,
		KeyID:      p.keyName,
		KeyVersion: keyVersionFromKID(resp.KID),
		Algorithm:  string(azkeys.EncryptionAlgorithmRSAOAEP256),
	}, nil
}

func (p *azureKeyVaultProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := p.client.Decrypt(ctx, p.keyName, "", azkeys.KeyOperationParameters{
		Algorithm: to.Ptr(azkeys.EncryptionAlgorithmRSAOAEP256),
		Value:     ciphertext,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return resp.Result, nil
}

func (p *azureKeyVaultProvider) KeyMetadata(ctx context.Context) (*KeyMetadata, error) {
	resp, err := p.client.GetKey(ctx, p.keyName, "", nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: get azure key: %w", err)
	}
	enabled := resp.Attributes != nil && resp.Attributes.Enabled != nil && *resp.Attributes.Enabled
	return &KeyMetadata{
		KeyID:      p.keyName,
		KeyVersion: keyVersionFromKID(resp.Key.KID),
		Algorithm:  string(azkeys.EncryptionAlgorithmRSAOAEP256),
		CreatedAt:  p.created,
		Enabled:    enabled,
	}, nil
}

func (p *azureKeyVaultProvider) RotateKey(ctx context.Context) (*RotationResult, error) {
	before, err := p.client.GetKey(ctx, p.keyName, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	prevVersion := keyVersionFromKID(before.Key.KID)
	resp, err := p.client.RotateKey(ctx, p.keyName, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	return &RotationResult{
		PreviousKeyVersion: prevVersion,
		NewKeyVersion:      keyVersionFromKID(resp.Key.KID),
		RotatedAt:          time.Now(),
	}, nil
}

func (p *azureKeyVaultProvider) Close() error { return nil }

// keyVersionFromKID extracts the trailing version segment of an Azure Key
// Vault key identifier URL (".../keys/<name>/<version>").
func keyVersionFromKID(kid *azkeys.ID) string {
	if kid == nil {
		return ""
	}
	s := string(*kid)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}

package keyvault

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// localEnclaveProvider simulates an on-device secure enclave: it "wraps"
// material with an ephemeral process-local key that is never persisted or
// exported. This is the zero-configuration default (§4.1: "created lazily
// on first call", no cloud dependency in the default path) and reports
// itself as hardware-backed to callers of Storage.HardwareBacked.
type localEnclaveProvider struct {
	mu      sync.Mutex
	wrapKey []byte
	version string
	created time.Time
}

func newLocalEnclaveProvider() *localEnclaveProvider {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &localEnclaveProvider{
		wrapKey: key,
		version: "v1",
		created: time.Now(),
	}
}

func (p *localEnclaveProvider) Encrypt(_ context.Context, plaintext []byte) (*EncryptOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	box, err := cryptoutil.Seal(p.wrapKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return &EncryptOutput{
		Ciphertext: encodeSealedBox(box),
		KeyID:      "local-enclave",
		KeyVersion: p.version,
		Algorithm:  "AES-256-GCM",
	}, nil
}

func (p *localEnclaveProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	box, err := decodeSealedBox(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := cryptoutil.Open(p.wrapKey, box, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (p *localEnclaveProvider) KeyMetadata(_ context.Context) (*KeyMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &KeyMetadata{
		KeyID:      "local-enclave",
		KeyVersion: p.version,
		Algorithm:  "AES-256-GCM",
		CreatedAt:  p.created,
		Enabled:    true,
	}, nil
}

func (p *localEnclaveProvider) RotateKey(_ context.Context) (*RotationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.version
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	p.wrapKey = key
	p.version = nextVersion(prev)
	return &RotationResult{
		PreviousKeyVersion: prev,
		NewKeyVersion:      p.version,
		RotatedAt:          time.Now(),
	}, nil
}

func (p *localEnclaveProvider) Close() error { return nil }

func nextVersion(v string) string {
	// "v1" -> "v2", etc. Best-effort parse; unknown formats just get a suffix.
	var n int
	if _, err := fmt.Sscanf(v, "v%d", &n); err == nil {
		return fmt.Sprintf("v%d", n+1)
	}
	return v + "+"
}

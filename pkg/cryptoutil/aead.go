package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SealedBox is the result of AEAD-sealing a plaintext: IV, ciphertext, and
// authentication tag kept separate per the capsule wire form (§6).
type SealedBox struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Seal encrypts plaintext with AES-256-GCM under key, returning the IV,
// ciphertext, and tag split apart as the capsule wire form requires.
func Seal(key, plaintext, additionalData []byte) (*SealedBox, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead seal: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead seal: new gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("aead seal: read iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, additionalData)
	tagStart := len(sealed) - gcm.Overhead()
	return &SealedBox{
		IV:         iv,
		Ciphertext: sealed[:tagStart],
		Tag:        sealed[tagStart:],
	}, nil
}

// Open decrypts and authenticates a SealedBox under key.
func Open(key []byte, box *SealedBox, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead open: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead open: new gcm: %w", err)
	}
	combined := append(append([]byte{}, box.Ciphertext...), box.Tag...)
	plaintext, err := gcm.Open(nil, box.IV, combined, additionalData)
	if err != nil {
		return nil, fmt.Errorf("aead open: authentication failed: %w", err)
	}
	return plaintext, nil
}

// RandomKey returns n cryptographically random bytes, used for per-capsule
// symmetric keys before they are wrapped under a session key.
func RandomKey(n int) ([]byte, error) {
	k := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil, fmt.Errorf("random key: %w", err)
	}
	return k, nil
}

// DeriveSessionKey performs ECDH key agreement between a local P-256
// keypair and a peer's public key, then derives a 32-byte session key via
// HKDF-SHA256 with sessionID as the info parameter (§4.1).
func DeriveSessionKey(local *ecdsa.PrivateKey, peer *ecdsa.PublicKey, sessionID string) ([]byte, error) {
	localECDH, err := local.ECDH()
	if err != nil {
		return nil, fmt.Errorf("derive session key: local ecdh: %w", err)
	}
	peerECDH, err := peer.ECDH()
	if err != nil {
		return nil, fmt.Errorf("derive session key: peer ecdh: %w", err)
	}
	shared, err := localECDH.ECDH(peerECDH)
	if err != nil {
		return nil, fmt.Errorf("derive session key: agreement: %w", err)
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(sessionID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive session key: hkdf: %w", err)
	}
	return key, nil
}

// Package cryptoutil holds the cryptographic primitives shared by the Key &
// Identity Core, the Contract Engine, and the Transport & Capsule layer:
// P-256 ECDSA signing, AES-256-GCM authenticated encryption, and the
// Shannon-entropy estimator the Egress Gate and the capsule verifier rely
// on. These are raw primitives, not a KMS concern, so they are built on
// the standard library's crypto packages rather than a third-party
// dependency — the pack's crypto-adjacent libraries (the cloud KMS SDKs
// wired in pkg/keyvault) cover key custody, not primitive operations, and
// none of the example repos bring in a bespoke ECDSA/AEAD library.
package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeyPair is a P-256 ECDSA keypair together with its PEM-encodable forms.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
}

// GenerateKeyPair creates a fresh P-256 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate P-256 keypair: %w", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// Sign produces a SHA-256 + ECDSA signature (ASN.1 DER) over data.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}

// Verify checks a SHA-256 + ECDSA signature against an arbitrary public
// key. It never panics or returns an error for a bad signature — a
// mismatch is reported as a plain false, per §4.1's "falsy result, never
// an exception leak" failure mode.
func Verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	if pub == nil || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

// MarshalPublicKey encodes a public key as PKIX/PEM, the form persisted by
// the secure-storage abstraction and exchanged during session handshakes.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// ParsePublicKey decodes a PEM/PKIX-encoded P-256 public key.
func ParsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("parse public key: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an ECDSA key")
	}
	return pub, nil
}

// MarshalPrivateKey encodes a private key as PKCS8/PEM for the
// secure-storage abstraction's at-rest form.
func MarshalPrivateKey(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// ParsePrivateKey decodes a PEM/PKCS8-encoded P-256 private key.
func ParsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("parse private key: no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an ECDSA key")
	}
	return priv, nil
}

// Fingerprint returns the first n hex characters of SHA-256(pubkeyBytes),
// the building block for node and pairwise DIDs (§4.1).
func Fingerprint(pub *ecdsa.PublicKey, n int) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("fingerprint public key: %w", err)
	}
	sum := sha256.Sum256(der)
	hexStr := fmt.Sprintf("%x", sum)
	if n > len(hexStr) {
		n = len(hexStr)
	}
	return hexStr[:n], nil
}

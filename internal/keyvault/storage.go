package keyvault

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/veilmesh/nodecore/pkg/cryptoutil"
)

// encodeSealedBox packs a cryptoutil.SealedBox into a single blob:
// len(iv) || iv || len(tag) || tag || ciphertext.
func encodeSealedBox(box *cryptoutil.SealedBox) []byte {
	out := make([]byte, 0, 8+len(box.IV)+len(box.Tag)+len(box.Ciphertext))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(box.IV)))
	out = append(out, lenBuf[:]...)
	out = append(out, box.IV...)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(box.Tag)))
	out = append(out, lenBuf[:]...)
	out = append(out, box.Tag...)
	out = append(out, box.Ciphertext...)
	return out
}

func decodeSealedBox(blob []byte) (*cryptoutil.SealedBox, error) {
	if len(blob) < 8 {
		return nil, fmt.Errorf("sealed box too short")
	}
	ivLen := binary.BigEndian.Uint32(blob[0:4])
	rest := blob[4:]
	if uint32(len(rest)) < ivLen+4 {
		return nil, fmt.Errorf("sealed box truncated (iv)")
	}
	iv := rest[:ivLen]
	rest = rest[ivLen:]
	tagLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < tagLen {
		return nil, fmt.Errorf("sealed box truncated (tag)")
	}
	tag := rest[:tagLen]
	ciphertext := rest[tagLen:]
	return &cryptoutil.SealedBox{IV: iv, Tag: tag, Ciphertext: ciphertext}, nil
}

// Storage is the secure-storage abstraction the Key Core persists root and
// pairwise key material through (§4.1). Every backend reports whether it
// is hardware-backed so callers can make policy decisions (e.g. refuse to
// run with long-lived root keys on a software-only fallback).
type Storage interface {
	// Put persists plaintext under keyID, encrypting it under the
	// configured EnvelopeProvider first.
	Put(ctx context.Context, keyID string, plaintext []byte) error
	// Get retrieves and decrypts the material stored under keyID.
	Get(ctx context.Context, keyID string) ([]byte, error)
	// Delete removes the material stored under keyID, if present.
	Delete(ctx context.Context, keyID string) error
	// HardwareBacked reports whether this backend is backed by a secure
	// enclave/HSM rather than a software envelope-encryption fallback.
	HardwareBacked() bool
}

// providerStorage is a Storage implementation that envelope-encrypts
// material via an EnvelopeProvider and persists the resulting ciphertext
// in an in-process map. On a real device this map would be backed by the
// OS keychain or encrypted filesystem; that persistence detail is outside
// the core's scope (§1) and is injected here as a minimal default so the
// Key Core is runnable standalone.
type providerStorage struct {
	provider EnvelopeProvider
	hwBacked bool

	mu   sync.RWMutex
	data map[string][]byte
}

// NewStorage builds a Storage backend from an EnvelopeProvider. The
// localEnclaveProvider reports hardware-backed; every other provider is a
// software envelope-encryption fallback.
func NewStorage(provider EnvelopeProvider) Storage {
	_, isLocal := provider.(*localEnclaveProvider)
	return &providerStorage{
		provider: provider,
		hwBacked: isLocal,
		data:     make(map[string][]byte),
	}
}

func (s *providerStorage) Put(ctx context.Context, keyID string, plaintext []byte) error {
	out, err := s.provider.Encrypt(ctx, plaintext)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[keyID] = out.Ciphertext
	return nil
}

func (s *providerStorage) Get(ctx context.Context, keyID string) ([]byte, error) {
	s.mu.RLock()
	ciphertext, ok := s.data[keyID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	return s.provider.Decrypt(ctx, ciphertext)
}

func (s *providerStorage) Delete(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, keyID)
	return nil
}

func (s *providerStorage) HardwareBacked() bool { return s.hwBacked }

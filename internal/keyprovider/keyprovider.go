// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyprovider holds the engine's root symmetric key behind a
// NonContiguousMemory shard set and never exposes it outside a
// scoped Buffer.
package keyprovider

import (
	"fmt"
	"sync"

	"github.com/partisec/stronghold/internal/memory"
)

const rootKeySize = 32

// KeyProvider is the holder of the root key that encrypts per-vault
// keys at rest (C7). The key material itself is never retained in a
// contiguous form; every accessor returns a fresh Buffer scoped to the
// caller.
type KeyProvider struct {
	mu  sync.Mutex
	ncm *memory.NonContiguousMemory
}

// New constructs a KeyProvider from a 32-byte key derivative, typically
// produced by a passphrase KDF (see internal/snapshot/kdf.go). Any other
// length is rejected.
func New(keyDerivative []byte, cfg memory.ShardConfig) (*KeyProvider, error) {
	if len(keyDerivative) != rootKeySize {
		return nil, fmt.Errorf("keyprovider: %w: got %d bytes, want %d", memory.ErrSizeMismatch, len(keyDerivative), rootKeySize)
	}
	ncm, err := memory.AllocShards(keyDerivative, rootKeySize, cfg)
	if err != nil {
		return nil, err
	}
	return &KeyProvider{ncm: ncm}, nil
}

// TryUnlock returns a Buffer holding the root key for the duration of
// the caller's borrow. Repeated unlocks are safe: each call reconstructs
// the key from the current shard set and returns an independent copy.
// Unlock serializes against any concurrent Refresh so a rotation never
// observes a half-written shard.
func (kp *KeyProvider) TryUnlock() (*memory.Buffer, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.ncm.Unlock()
}

// Refresh rotates the shard bit pattern without changing the logical
// root key. It serializes against TryUnlock the same way TryUnlock
// serializes against it, via the shared mutex.
func (kp *KeyProvider) Refresh() error {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.ncm.Refresh()
}

// Rekey replaces the root key outright (e.g. after a passphrase
// change), re-sharding the new key under the same configuration.
func (kp *KeyProvider) Rekey(newKey []byte) error {
	if len(newKey) != rootKeySize {
		return fmt.Errorf("keyprovider: %w: got %d bytes, want %d", memory.ErrSizeMismatch, len(newKey), rootKeySize)
	}
	kp.mu.Lock()
	defer kp.mu.Unlock()

	buf, err := memory.Alloc(newKey, rootKeySize)
	if err != nil {
		return err
	}
	defer buf.Close()
	return kp.ncm.Update(buf, rootKeySize)
}

// Close releases the underlying shard set.
func (kp *KeyProvider) Close() error {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.ncm.Close()
}

func (kp *KeyProvider) String() string { return "Content of Locked Memory is hidden" }

// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot implements the on-disk container format (C13) and
// the V2-to-V3 migration path (C14).
package snapshot

import (
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// KDF derives a 32-byte AEAD key from a passphrase. The container
// format never encodes which KDF produced a given key, so swapping the
// default does not change the on-disk layout — only how a future
// writer chooses to derive its key.
type KDF interface {
	Derive(passphrase []byte) ([32]byte, error)
}

// Blake2bKDF is the legacy derivation: a single Blake2b-256 hash of the
// passphrase, with no salt or work factor. Kept only so that old
// snapshots remain readable; new snapshots should prefer Argon2idKDF.
type Blake2bKDF struct{}

func (Blake2bKDF) Derive(passphrase []byte) ([32]byte, error) {
	return blake2b.Sum256(passphrase), nil
}

// Argon2idKDF derives the key with Argon2id under sensitive parameters,
// salted with the caller-supplied Salt. The container does not store the
// salt, so a reader must derive with the same Salt the writer used.
// This is the recommended default for new
// snapshots; it is deliberately expensive to slow offline brute force
// against a stolen file.
type Argon2idKDF struct {
	Salt    []byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2idKDF returns parameters sized for interactive unlock of
// a locally stored snapshot (not a high-throughput server workload).
func DefaultArgon2idKDF(salt []byte) Argon2idKDF {
	return Argon2idKDF{Salt: salt, Time: 3, Memory: 64 * 1024, Threads: 4}
}

func (k Argon2idKDF) Derive(passphrase []byte) ([32]byte, error) {
	if len(k.Salt) == 0 {
		return [32]byte{}, fmt.Errorf("snapshot: argon2id: empty salt")
	}
	out := argon2.IDKey(passphrase, k.Salt, k.Time, k.Memory, k.Threads, 32)
	var key [32]byte
	copy(key[:], out)
	return key, nil
}

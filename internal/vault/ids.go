// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault implements the transaction chain, prune algorithm, and
// public DbView API (C9-C11).
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// IDSize is the fixed width of every identifier and hint in the vault
// layer.
const IDSize = 24

// ID is a 24-byte opaque, randomly generated identifier. ClientId,
// VaultId and RecordId are type-disjoint wrappers over the same
// underlying shape so the compiler catches a VaultId passed where a
// RecordId is expected.
type ID [IDSize]byte

// NewID draws a fresh random ID.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, fmt.Errorf("vault: generate id: %w", err)
	}
	return id, nil
}

// String renders the ID as base64 for logs and debug output; it is
// never used to reconstruct the ID.
func (id ID) String() string { return base64.StdEncoding.EncodeToString(id[:]) }

// ClientId identifies an engine client/owner.
type ClientId ID

func (c ClientId) String() string { return ID(c).String() }

// NewClientId draws a fresh random ClientId.
func NewClientId() (ClientId, error) {
	id, err := NewID()
	return ClientId(id), err
}

// VaultId identifies one vault (one chain, one vault key).
type VaultId ID

func (v VaultId) String() string { return ID(v).String() }

// NewVaultId draws a fresh random VaultId.
func NewVaultId() (VaultId, error) {
	id, err := NewID()
	return VaultId(id), err
}

// RecordId identifies one logical secret within a vault's chain. The
// zero value is reserved for Init transactions, which own no record.
type RecordId ID

func (r RecordId) String() string { return ID(r).String() }

// NewRecordId draws a fresh random RecordId.
func NewRecordId() (RecordId, error) {
	id, err := NewID()
	return RecordId(id), err
}

// Hint is a 24-byte user-supplied label attached to a Data transaction.
// It is opaque to the engine and, like the payload, is sealed at rest.
type Hint [IDSize]byte

// NewHint copies up to 24 bytes of label into a Hint, zero-padding any
// remainder.
func NewHint(label []byte) Hint {
	var h Hint
	copy(h[:], label)
	return h
}

// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "encoding/binary"

// Kind discriminates the three transaction types a chain may hold.
type Kind uint8

const (
	// KindInit creates a chain. Exactly one is live per chain prefix.
	KindInit Kind = iota
	// KindData carries one logical secret as ciphertext.
	KindData
	// KindRevocation marks a prior Data transaction, identified by
	// RecordId, as revoked.
	KindRevocation
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindData:
		return "Data"
	case KindRevocation:
		return "Revocation"
	default:
		return "Unknown"
	}
}

// Transaction is one authenticated entry in a vault's chain. Header
// fields (Kind, VaultID, RecordID, Ctr, Hint) are always present in the
// clear; Sealed carries the ciphertext body for Data transactions and
// is nil for Init and Revocation.
type Transaction struct {
	ID       ID
	Kind     Kind
	VaultID  VaultId
	RecordID RecordId
	Ctr      uint64
	Hint     Hint
	Sealed   []byte
}

// headerBytes deterministically serializes the header fields that must
// be authenticated as associated data: Kind, VaultID, RecordID, Ctr,
// Hint. A ciphertext sealed under one header cannot be replayed at a
// different position in the chain because the ad changes with Ctr and
// RecordID.
func (t *Transaction) headerBytes() []byte {
	buf := make([]byte, 0, 1+IDSize+IDSize+8+IDSize)
	buf = append(buf, byte(t.Kind))
	buf = append(buf, t.VaultID[:]...)
	buf = append(buf, t.RecordID[:]...)
	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], t.Ctr)
	buf = append(buf, ctrBuf[:]...)
	buf = append(buf, t.Hint[:]...)
	return buf
}

// AssociatedData is the byte string passed to box_seal/box_open for
// this transaction's Sealed payload.
func (t *Transaction) AssociatedData() []byte { return t.headerBytes() }

// NewInit constructs an Init transaction at ctr, owning no record.
func NewInit(vaultID VaultId, ctr uint64) (*Transaction, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Transaction{ID: id, Kind: KindInit, VaultID: vaultID, Ctr: ctr}, nil
}

// NewData constructs a Data transaction carrying sealed as its
// ciphertext body.
func NewData(vaultID VaultId, recordID RecordId, ctr uint64, hint Hint, sealed []byte) (*Transaction, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ID: id, Kind: KindData, VaultID: vaultID, RecordID: recordID,
		Ctr: ctr, Hint: hint, Sealed: sealed,
	}, nil
}

// NewRevocation constructs a Revocation referencing recordID.
func NewRevocation(vaultID VaultId, recordID RecordId, ctr uint64) (*Transaction, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Transaction{ID: id, Kind: KindRevocation, VaultID: vaultID, RecordID: recordID, Ctr: ctr}, nil
}

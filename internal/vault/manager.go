// Copyright 2024 The Stronghold Engine Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"sync"

	"github.com/partisec/stronghold/internal/cryptobox"
	"github.com/partisec/stronghold/internal/keyprovider"
	"github.com/partisec/stronghold/internal/memory"
)

// vaultEntry is one VaultId's state: its vault key (sealed at rest
// under the root key, VaultId as associated data) plus every
// transaction ever appended to its chain, pruned or not.
type vaultEntry struct {
	sealedKey []byte
	txs       []*Transaction
}

// Manager is the process-wide VaultId -> Vault mapping (C11's DbView).
// It owns every chain for the lifetime of the engine session and
// serializes all callers behind one reader-writer lock: per-vault
// chains are not independently lockable, matching the design's choice
// of simplicity over per-chain write parallelism (writes are not the
// hot path).
type Manager struct {
	mu     sync.RWMutex
	box    cryptobox.Provider
	vaults map[VaultId]*vaultEntry
}

// NewManager constructs an empty DbView using box for all sealing.
func NewManager(box cryptobox.Provider) *Manager {
	return &Manager{box: box, vaults: make(map[VaultId]*vaultEntry)}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// InitVault allocates a fresh vault key, seals it under root_key with
// vaultID as associated data, and records an Init transaction at ctr
// 0. A vault that already exists is left untouched: InitVault never
// rotates an existing key.
func (m *Manager) InitVault(kp *keyprovider.KeyProvider, vaultID VaultId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.vaults[vaultID]; ok {
		return nil
	}

	rootBuf, err := kp.TryUnlock()
	if err != nil {
		return err
	}
	defer rootBuf.Close()

	vaultKey := make([]byte, m.box.BoxKeyLen())
	if err := m.box.RandomBuf(vaultKey); err != nil {
		return fmt.Errorf("%w: vault key: %v", ErrEncryption, err)
	}
	defer zero(vaultKey)

	var sealed []byte
	err = rootBuf.WithBytes(func(rootKey []byte) error {
		s, err := m.box.BoxSeal(rootKey, vaultID[:], vaultKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		sealed = s
		return nil
	})
	if err != nil {
		return err
	}

	initTx, err := NewInit(vaultID, 0)
	if err != nil {
		return err
	}

	m.vaults[vaultID] = &vaultEntry{sealedKey: sealed, txs: []*Transaction{initTx}}
	return nil
}

// unlockVaultKey opens entry's sealed vault key under the unlocked
// root key and returns it as a scoped Buffer.
func (m *Manager) unlockVaultKey(rootBuf *memory.Buffer, vaultID VaultId, entry *vaultEntry) (*memory.Buffer, error) {
	var plain []byte
	err := rootBuf.WithBytes(func(rootKey []byte) error {
		p, err := m.box.BoxOpen(rootKey, vaultID[:], entry.sealedKey)
		if err != nil {
			return fmt.Errorf("%w: vault key: %v", ErrDecryption, err)
		}
		plain = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer zero(plain)
	return memory.Alloc(plain, len(plain))
}

// Write unlocks the vault key, seals plaintext under a header naming
// the next ctr, and appends a Data transaction.
func (m *Manager) Write(kp *keyprovider.KeyProvider, vaultID VaultId, recordID RecordId, plaintext []byte, hint Hint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return ErrVaultNotInit
	}

	rootBuf, err := kp.TryUnlock()
	if err != nil {
		return err
	}
	defer rootBuf.Close()

	vkBuf, err := m.unlockVaultKey(rootBuf, vaultID, entry)
	if err != nil {
		return err
	}
	defer vkBuf.Close()

	highest, _ := maxCtr(entry.txs)
	nextCtr := highest + 1

	id, err := NewID()
	if err != nil {
		return err
	}
	tx := &Transaction{ID: id, Kind: KindData, VaultID: vaultID, RecordID: recordID, Ctr: nextCtr, Hint: hint}
	ad := tx.AssociatedData()

	err = vkBuf.WithBytes(func(vaultKey []byte) error {
		sealed, err := m.box.BoxSeal(vaultKey, ad, plaintext)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		tx.Sealed = sealed
		return nil
	})
	if err != nil {
		return err
	}

	entry.txs = append(entry.txs, tx)
	return nil
}

// Revoke appends a Revocation transaction for recordID. It is a no-op
// if the record is not currently live.
func (m *Manager) Revoke(vaultID VaultId, recordID RecordId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return ErrVaultNotInit
	}

	if !liveDataRecord(entry.txs, recordID) {
		return nil
	}

	highest, _ := maxCtr(entry.txs)
	tx, err := NewRevocation(vaultID, recordID, highest+1)
	if err != nil {
		return err
	}
	entry.txs = append(entry.txs, tx)
	return nil
}

func liveDataRecord(txs []*Transaction, recordID RecordId) bool {
	return findLiveData(txs, recordID) != nil
}

// findLiveData prunes the chain for recordID alone so that a write or
// revocation against any other record in the same vault can never
// shadow it.
func findLiveData(txs []*Transaction, recordID RecordId) *Transaction {
	filtered := filterForRecord(txs, recordID)
	chain := Prune(filtered)
	byID := make(map[ID]*Transaction, len(filtered))
	for _, tx := range filtered {
		byID[tx.ID] = tx
	}
	for _, id := range chain.Subchain() {
		tx := byID[id]
		if tx.Kind == KindData && tx.RecordID == recordID {
			return tx
		}
	}
	return nil
}

// GetGuard unlocks the vault key, opens the live Data transaction for
// recordID into a fresh Buffer, invokes f synchronously, and releases
// the Buffer before returning — even if f panics.
func (m *Manager) GetGuard(kp *keyprovider.KeyProvider, vaultID VaultId, recordID RecordId, f func(*memory.Buffer) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return ErrVaultNotInit
	}

	tx := findLiveData(entry.txs, recordID)
	if tx == nil {
		return ErrRecordNotFound
	}

	rootBuf, err := kp.TryUnlock()
	if err != nil {
		return err
	}
	defer rootBuf.Close()

	vkBuf, err := m.unlockVaultKey(rootBuf, vaultID, entry)
	if err != nil {
		return err
	}
	defer vkBuf.Close()

	var plain []byte
	err = vkBuf.WithBytes(func(vaultKey []byte) error {
		p, err := m.box.BoxOpen(vaultKey, tx.AssociatedData(), tx.Sealed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		plain = p
		return nil
	})
	if err != nil {
		return err
	}
	defer zero(plain)

	buf, err := memory.Alloc(plain, len(plain))
	if err != nil {
		return err
	}
	defer buf.Close()

	return f(buf)
}

// ExecProc reads the source record under a guard, hands its plaintext
// to f, and seals f's return value into the destination vault as a new
// Data transaction. The source chain is never mutated.
func (m *Manager) ExecProc(
	srcKP *keyprovider.KeyProvider, srcVault VaultId, srcRecord RecordId,
	dstKP *keyprovider.KeyProvider, dstVault VaultId, dstRecord RecordId, dstHint Hint,
	f func([]byte) ([]byte, error),
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	srcEntry, ok := m.vaults[srcVault]
	if !ok {
		return ErrVaultNotInit
	}
	srcTx := findLiveData(srcEntry.txs, srcRecord)
	if srcTx == nil {
		return ErrRecordNotFound
	}

	srcRootBuf, err := srcKP.TryUnlock()
	if err != nil {
		return err
	}
	defer srcRootBuf.Close()

	srcVKBuf, err := m.unlockVaultKey(srcRootBuf, srcVault, srcEntry)
	if err != nil {
		return err
	}
	defer srcVKBuf.Close()

	var transformed []byte
	err = srcVKBuf.WithBytes(func(vaultKey []byte) error {
		plain, err := m.box.BoxOpen(vaultKey, srcTx.AssociatedData(), srcTx.Sealed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		defer zero(plain)

		buf, err := memory.Alloc(plain, len(plain))
		if err != nil {
			return err
		}
		defer buf.Close()

		return buf.WithBytes(func(b []byte) error {
			out, err := f(b)
			if err != nil {
				return err
			}
			transformed = out
			return nil
		})
	})
	if err != nil {
		return err
	}
	defer zero(transformed)

	dstEntry, ok := m.vaults[dstVault]
	if !ok {
		return ErrVaultNotInit
	}

	dstRootBuf, err := dstKP.TryUnlock()
	if err != nil {
		return err
	}
	defer dstRootBuf.Close()

	dstVKBuf, err := m.unlockVaultKey(dstRootBuf, dstVault, dstEntry)
	if err != nil {
		return err
	}
	defer dstVKBuf.Close()

	highest, _ := maxCtr(dstEntry.txs)
	id, err := NewID()
	if err != nil {
		return err
	}
	dstTx := &Transaction{ID: id, Kind: KindData, VaultID: dstVault, RecordID: dstRecord, Ctr: highest + 1, Hint: dstHint}
	ad := dstTx.AssociatedData()

	err = dstVKBuf.WithBytes(func(vaultKey []byte) error {
		sealed, err := m.box.BoxSeal(vaultKey, ad, transformed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		dstTx.Sealed = sealed
		return nil
	})
	if err != nil {
		return err
	}

	dstEntry.txs = append(dstEntry.txs, dstTx)
	return nil
}

// GarbageCollectVault rebuilds vaultID's chain, keeping the union of
// every distinct record's pruned subchain and dropping everything
// pruning determined none of them still reference. Each record is
// pruned independently so that one record's garbage (a superseded
// Data, a revoked subchain) is never confused with another's.
func (m *Manager) GarbageCollectVault(vaultID VaultId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return ErrVaultNotInit
	}

	records := make(map[RecordId]struct{})
	for _, tx := range entry.txs {
		if tx.Kind != KindInit {
			records[tx.RecordID] = struct{}{}
		}
	}

	keep := make(map[ID]struct{})
	if len(records) == 0 {
		chain := Prune(entry.txs)
		for _, id := range chain.Subchain() {
			keep[id] = struct{}{}
		}
	}
	for recordID := range records {
		chain := Prune(filterForRecord(entry.txs, recordID))
		for _, id := range chain.Subchain() {
			keep[id] = struct{}{}
		}
	}

	kept := make([]*Transaction, 0, len(keep))
	for _, tx := range entry.txs {
		if _, ok := keep[tx.ID]; ok {
			kept = append(kept, tx)
		}
	}
	entry.txs = kept
	return nil
}

// ListHintsAndIds enumerates the live Data transactions of vaultID,
// one per distinct record that currently has one.
func (m *Manager) ListHintsAndIds(vaultID VaultId) ([]RecordId, []Hint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return nil, nil, ErrVaultNotInit
	}

	records := make(map[RecordId]struct{})
	for _, tx := range entry.txs {
		if tx.Kind != KindInit {
			records[tx.RecordID] = struct{}{}
		}
	}

	var ids []RecordId
	var hints []Hint
	for recordID := range records {
		if tx := findLiveData(entry.txs, recordID); tx != nil {
			ids = append(ids, recordID)
			hints = append(hints, tx.Hint)
		}
	}
	return ids, hints, nil
}

// ContainsRecord reports whether recordID currently has a live Data
// transaction in vaultID's chain.
func (m *Manager) ContainsRecord(vaultID VaultId, recordID RecordId) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.vaults[vaultID]
	if !ok {
		return false, ErrVaultNotInit
	}
	return liveDataRecord(entry.txs, recordID), nil
}

// VaultSnapshot is the serializable shape of one vault's state: its
// sealed key and its raw (unpruned) transaction list.
type VaultSnapshot struct {
	SealedKey    []byte
	Transactions []*Transaction
}

// ExportState returns every vault's sealed key and transaction list,
// suitable for persisting in a snapshot and later restoring via
// ImportState.
func (m *Manager) ExportState() map[VaultId]VaultSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[VaultId]VaultSnapshot, len(m.vaults))
	for id, e := range m.vaults {
		txs := make([]*Transaction, len(e.txs))
		copy(txs, e.txs)
		out[id] = VaultSnapshot{SealedKey: append([]byte(nil), e.sealedKey...), Transactions: txs}
	}
	return out
}

// ImportState replaces the Manager's entire vault set with state,
// typically decoded from a snapshot. Existing vaults not present in
// state are dropped.
func (m *Manager) ImportState(state map[VaultId]VaultSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vaults := make(map[VaultId]*vaultEntry, len(state))
	for id, vs := range state {
		vaults[id] = &vaultEntry{sealedKey: vs.SealedKey, txs: vs.Transactions}
	}
	m.vaults = vaults
}
